// Package module runs the modules that publish data models: it enables and
// disables them, binds their models, and drives their update loop.
package module

import (
	"context"
	"errors"
	"time"

	"github.com/agentic-research/dmpath/internal/datamodel"
)

var (
	// ErrUnknownModule is returned for module IDs that were never registered.
	ErrUnknownModule = errors.New("unknown module")
	// ErrDuplicateModule is returned when registering an ID twice.
	ErrDuplicateModule = errors.New("module already registered")
	// ErrNoModel is returned when a module enables without a data model.
	ErrNoModel = errors.New("module returned no data model")
)

// Module is a producer of a data model tree.
//
// Enable builds the module's data model; the manager binds it to the module ID.
// Update is called once per tick with the time since the previous tick and
// mutates the model. Disable releases module resources; the manager destroys
// the model afterwards, invalidating every path into it.
type Module interface {
	ID() string
	Description() datamodel.Description
	Enable(ctx context.Context) (datamodel.Model, error)
	Update(ctx context.Context, dt time.Duration) error
	Disable(ctx context.Context) error
}

// Info is a snapshot of a registered module.
type Info struct {
	ID          string                `json:"id"`
	Description datamodel.Description `json:"description"`
	Enabled     bool                  `json:"enabled"`
	Paths       int                   `json:"paths"`
}

// EventKind identifies a lifecycle transition.
type EventKind int

const (
	Enabled EventKind = iota + 1
	Disabled
)

func (k EventKind) String() string {
	switch k {
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Event is delivered to manager subscribers after a module was enabled or
// disabled. Model is the enabled model, or the destroyed one.
type Event struct {
	Kind   EventKind
	Module string
	Model  datamodel.Model
}
