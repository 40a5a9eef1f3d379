package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/netwrench/netwrench/internal/apply"
	"github.com/netwrench/netwrench/internal/catalog"
	"github.com/netwrench/netwrench/internal/checkpoint"
	"github.com/netwrench/netwrench/internal/plan"
	"github.com/netwrench/netwrench/internal/render"
)

// handleValidate validates a change request. Validation issues are data, not
// an HTTP error: the response is always 200 with ok/issues.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, err := plan.DecodeRequest(r.Body)
	if err != nil {
		WriteInvalidRequest(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, s.deps.Validator.Validate(req))
}

// renderResponse pairs the structured command set with its script form.
type renderResponse struct {
	CommandSet *render.CommandSet `json:"command_set"`
	Script     string             `json:"script"`
}

// handleRender validates and renders a change request. An invalid request is
// 422 with the issue list.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	req, err := plan.DecodeRequest(r.Body)
	if err != nil {
		WriteInvalidRequest(w, err.Error())
		return
	}

	result := s.deps.Validator.Validate(req)
	if !result.OK {
		WriteErrorDetails(w, http.StatusUnprocessableEntity, ErrCodeValidationFailed,
			"change request failed validation", map[string]interface{}{"issues": result.Issues})
		return
	}

	cs, err := render.Render(result.Plan)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, renderResponse{CommandSet: cs, Script: cs.Script()})
}

// applyRequest is the body of POST /plans/apply.
type applyRequest struct {
	Request plan.ChangeRequest `json:"request"`
	DryRun  bool               `json:"dry_run,omitempty"`
	Label   string             `json:"label,omitempty"`
}

// handleApply runs the full pipeline. The response is always a ChangeReport;
// a failed rollback is flagged with a 500 status because the system may need
// manual intervention.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var body applyRequest
	if err := dec.Decode(&body); err != nil {
		WriteInvalidRequest(w, "failed to decode apply request: "+err.Error())
		return
	}

	result := s.deps.Validator.Validate(&body.Request)
	if !result.OK {
		WriteErrorDetails(w, http.StatusUnprocessableEntity, ErrCodeValidationFailed,
			"change request failed validation", map[string]interface{}{"issues": result.Issues})
		return
	}

	cs, err := render.Render(result.Plan)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	report := s.deps.Applier.Apply(r.Context(), cs, apply.Options{Label: body.Label, DryRun: body.DryRun})
	status := http.StatusOK
	if report.State == apply.StateRollbackFailed {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, report)
}

func (s *Server) handleCheckpointsList(w http.ResponseWriter, r *http.Request) {
	checkpoints, err := s.deps.Checkpoints.List(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, checkpoints)
}

// snapshotRequest is the body of POST /checkpoints: an explicit snapshot of
// the full managed surface for one interface.
type snapshotRequest struct {
	Interface string `json:"iface"`
	Label     string `json:"label,omitempty"`
}

func (s *Server) handleCheckpointCreate(w http.ResponseWriter, r *http.Request) {
	var body snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteInvalidRequest(w, "failed to decode snapshot request: "+err.Error())
		return
	}
	if body.Interface == "" {
		WriteInvalidRequest(w, "iface is required")
		return
	}
	if s.deps.Prober != nil {
		exists, err := s.deps.Prober.Exists(body.Interface)
		if err != nil || !exists {
			WriteError(w, http.StatusUnprocessableEntity, ErrCodeValidationFailed,
				"interface "+body.Interface+" does not exist")
			return
		}
	}

	scope := checkpoint.FullScope(body.Interface, s.kernelKeys())
	cp, err := s.deps.Checkpoints.Snapshot(r.Context(), scope, body.Label)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"checkpoint_id": cp.ID})
}

func (s *Server) handleCheckpointGet(w http.ResponseWriter, r *http.Request) {
	cp, err := s.deps.Checkpoints.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, cp)
}

func (s *Server) handleCheckpointDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Checkpoints.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckpointRollback(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.deps.Checkpoints.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if outcome != nil {
			// Surface the partial notes alongside the distinct failure code.
			WriteErrorDetails(w, http.StatusInternalServerError, ErrCodeRollbackFailed, err.Error(),
				map[string]interface{}{"notes": outcome.Notes})
			return
		}
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	interfaces, err := s.deps.Prober.List()
	if err != nil {
		WriteInternalError(w, "failed to list interfaces: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, interfaces)
}

func (s *Server) handleCatalogParameters(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.deps.Catalog.Definitions())
}

func (s *Server) handleCatalogProfiles(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.deps.Catalog.Profiles())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.deps.Checkpoints.Count(r.Context())
	if err != nil {
		count = -1
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":     s.deps.Version,
		"parameters":  len(s.deps.Catalog.Keys()),
		"profiles":    len(s.deps.Catalog.Profiles()),
		"checkpoints": count,
	})
}

// kernelKeys returns every kernel-parameter key in the catalog; the scope of
// an explicit full snapshot.
func (s *Server) kernelKeys() []string {
	var keys []string
	for _, def := range s.deps.Catalog.Definitions() {
		if def.Category == catalog.CategoryKernelParameter {
			keys = append(keys, def.Key)
		}
	}
	return keys
}
