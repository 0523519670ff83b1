package datamodel

import "errors"

var (
	// ErrDuplicateKey is returned when a dynamic child key collides with another
	// dynamic child or a static property of the same node.
	ErrDuplicateKey = errors.New("duplicate dynamic child key")
	// ErrInvalidKey is returned for empty keys and keys containing the path separator.
	ErrInvalidKey = errors.New("invalid dynamic child key")
	// ErrNilValue is returned when a dynamic child is added with a nil pointer or interface.
	ErrNilValue = errors.New("dynamic child value is nil")
	// ErrDestroyed is returned when mutating a node whose module has been unloaded.
	ErrDestroyed = errors.New("data model destroyed")
	// ErrUnbound is returned when mutating an embedded Node that was never bound.
	ErrUnbound = errors.New("data model not bound")
	// ErrModelByValue is returned when a dynamic child would hold a data model by
	// value instead of by pointer.
	ErrModelByValue = errors.New("data model must be held by pointer")
	// ErrCycle is returned when a node is added as its own child.
	ErrCycle = errors.New("data model cannot contain itself")
	// ErrNilRoot is returned when a path is created without a root.
	ErrNilRoot = errors.New("path root is nil")
)
