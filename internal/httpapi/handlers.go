package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentic-research/dmpath/internal/binding"
	"github.com/agentic-research/dmpath/internal/datamodel"
	"github.com/agentic-research/dmpath/internal/module"
	"github.com/agentic-research/dmpath/internal/visualize"
)

type handlers struct {
	cfg Config
}

// ValueResponse is the body of GET /modules/{id}/value.
type ValueResponse struct {
	Path     string             `json:"path"`
	Valid    bool               `json:"valid"`
	Type     string             `json:"type,omitempty"`
	Value    any                `json:"value,omitempty"`
	Segments []SegmentResponse  `json:"segments,omitempty"`
	Members  []datamodel.Member `json:"members,omitempty"`
}

// SegmentResponse describes one resolved path segment.
type SegmentResponse struct {
	Identifier  string `json:"identifier"`
	Kind        string `json:"kind"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Affix       string `json:"affix,omitempty"`
}

type createBindingRequest struct {
	Module string `json:"module"`
	Path   string `json:"path"`
	Label  string `json:"label"`
}

func (h *handlers) listModules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Manager.Modules())
}

func (h *handlers) enableModule(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.cfg.Manager.Enable)
}

func (h *handlers) disableModule(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.cfg.Manager.Disable)
}

func (h *handlers) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	err := op(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, module.ErrUnknownModule):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handlers) model(w http.ResponseWriter, r *http.Request) (datamodel.Model, bool) {
	id := chi.URLParam(r, "id")
	if _, ok := h.cfg.Manager.Module(id); !ok {
		writeError(w, http.StatusNotFound, "unknown module "+id)
		return nil, false
	}
	model, ok := h.cfg.Manager.DataModel(id)
	if !ok {
		writeError(w, http.StatusConflict, "module "+id+" is disabled")
		return nil, false
	}
	return model, true
}

func (h *handlers) tree(w http.ResponseWriter, r *http.Request) {
	model, ok := h.model(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	opts := visualize.Options{MaxDepth: h.cfg.MaxDepth}
	if d := q.Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "depth must be a positive integer")
			return
		}
		opts.MaxDepth = n
	}
	for _, name := range q["type"] {
		t, ok := typeNames[strings.ToLower(name)]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown type "+name)
			return
		}
		opts.Types = append(opts.Types, t)
	}
	opts.LooseMatch = q.Get("loose") == "true"
	opts.IncludeValues = q.Get("values") == "true"

	writeJSON(w, http.StatusOK, visualize.Project(model, opts))
}

func (h *handlers) value(w http.ResponseWriter, r *http.Request) {
	model, ok := h.model(w, r)
	if !ok {
		return
	}
	literal := r.URL.Query().Get("path")
	p, err := datamodel.NewPath(model, literal)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer p.Close()

	resp := ValueResponse{Path: literal, Valid: p.IsValid()}
	if t := p.Type(); t != nil {
		resp.Type = t.String()
	}
	for _, s := range p.Segments() {
		seg := SegmentResponse{
			Identifier:  s.Identifier,
			Kind:        s.Kind.String(),
			Name:        s.Description.Name,
			Description: s.Description.Description,
			Affix:       s.Description.Affix,
		}
		if s.Type != nil {
			seg.Type = s.Type.String()
		}
		resp.Segments = append(resp.Segments, seg)
	}
	if v, ok := p.Value(); ok {
		// Data models are live objects; list their members instead.
		if _, isModel := v.(datamodel.Model); isModel {
			resp.Members = p.Members()
		} else {
			resp.Value = v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) members(w http.ResponseWriter, r *http.Request) {
	model, ok := h.model(w, r)
	if !ok {
		return
	}
	p, err := datamodel.NewPath(model, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer p.Close()
	members := p.Members()
	if members == nil {
		members = []datamodel.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *handlers) listBindings(w http.ResponseWriter, _ *http.Request) {
	if h.cfg.Tracker == nil {
		writeError(w, http.StatusNotFound, "bindings are not enabled")
		return
	}
	writeJSON(w, http.StatusOK, h.cfg.Tracker.Snapshot())
}

func (h *handlers) createBinding(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Tracker == nil {
		writeError(w, http.StatusNotFound, "bindings are not enabled")
		return
	}
	var req createBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ref, err := binding.NewReference(req.Module, req.Path, req.Label)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.cfg.Store != nil {
		if err := h.cfg.Store.Save(r.Context(), ref); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	h.cfg.Tracker.Add(ref)
	writeJSON(w, http.StatusCreated, ref)
}

func (h *handlers) deleteBinding(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Tracker == nil {
		writeError(w, http.StatusNotFound, "bindings are not enabled")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid binding id")
		return
	}
	removed := h.cfg.Tracker.Remove(id)
	if h.cfg.Store != nil {
		err := h.cfg.Store.Delete(r.Context(), id)
		switch {
		case errors.Is(err, binding.ErrNotFound):
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		default:
			removed = true
		}
	}
	if !removed {
		writeError(w, http.StatusNotFound, "binding not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var typeNames = map[string]reflect.Type{
	"bool":     reflect.TypeFor[bool](),
	"int":      reflect.TypeFor[int](),
	"float":    reflect.TypeFor[float64](),
	"float64":  reflect.TypeFor[float64](),
	"string":   reflect.TypeFor[string](),
	"duration": reflect.TypeFor[time.Duration](),
	"time":     reflect.TypeFor[time.Time](),
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
