package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/face-labeler/internal/constants"
	"github.com/kozaktomas/face-labeler/internal/embedding"
	"github.com/kozaktomas/face-labeler/internal/workflow"
)

// Handler serves the decider API for one session.
type Handler struct {
	session     *Session
	previewSize int
	log         *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(session *Session, previewSize int, log *slog.Logger) *Handler {
	if previewSize <= 0 {
		previewSize = constants.DefaultPreviewSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{session: session, previewSize: previewSize, log: log}
}

// DecisionRequest is the body of POST /decision.
type DecisionRequest struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Skip  bool   `json:"skip"`
	Quit  bool   `json:"quit"`
}

// State returns the session snapshot.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.session.Snapshot())
}

// Candidate returns the pending candidate, or 204 when nothing is pending.
func (h *Handler) Candidate(w http.ResponseWriter, r *http.Request) {
	p := h.session.Current()
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Preview serves a downscaled JPEG of the pending candidate.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	p := h.session.Current()
	if p == nil {
		respondError(w, http.StatusNotFound, ErrNoPending.Error())
		return
	}

	data, err := embedding.Preview(p.Request.Candidate.Path, h.previewSize)
	if err != nil {
		h.log.Warn("preview failed", "path", p.Request.Candidate.Path, "error", err)
		respondError(w, http.StatusUnprocessableEntity, "cannot render preview")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// Decide resolves the pending candidate.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.DecisionBodyLimit))
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	var d workflow.Decision
	switch {
	case req.Quit:
	case req.Skip:
		d = workflow.SkipDecision()
	case req.Label != "":
		d = workflow.Accept(req.Label)
	default:
		respondError(w, http.StatusBadRequest, "label, skip or quit is required")
		return
	}

	err := h.session.Resolve(req.ID, d, req.Quit)
	switch {
	case errors.Is(err, ErrNoPending), errors.Is(err, ErrStale):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Summary returns the final summary, or 409 while the run is in progress.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	if !snap.Done {
		respondError(w, http.StatusConflict, "run in progress")
		return
	}
	respondJSON(w, http.StatusOK, snap.Summary)
}
