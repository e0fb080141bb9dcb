package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"media-generation-jobs/internal/domain"
	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/infra/metrics"
	"media-generation-jobs/internal/usecase"
)

// ownerHeader identifies the requesting principal. Authentication itself is
// the gateway's job; this service trusts the forwarded identity.
const ownerHeader = "X-Owner-ID"

type submitRequest struct {
	Tool   model.ToolKind `json:"tool"`
	Params map[string]any `json:"params"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(ownerHeader)
	if ownerID == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := s.submitUC.Submit(r.Context(), ownerID, req.Tool, req.Params)
	if err != nil {
		// A provider rejection still produced a (failed) job record; return
		// it so the client can render the classified failure.
		if errors.Is(err, domain.ErrProviderRejected) && job != nil {
			writeJSON(w, http.StatusBadGateway, job)
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(ownerHeader)
	if ownerID == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	tool := model.ToolKind(r.URL.Query().Get("tool"))

	jobs, err := s.jobsUC.List(r.Context(), ownerID, tool, 50)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*model.Job `json:"data"`
	}{Data: jobs})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(ownerHeader)
	if ownerID == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	job, err := s.jobsUC.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(ownerHeader)
	if ownerID == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	job, err := s.submitUC.Retry(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrProviderRejected) && job != nil {
			writeJSON(w, http.StatusBadGateway, job)
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(ownerHeader)
	if ownerID == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	if err := s.jobsUC.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWebhook validates the callback token, acks immediately and runs
// reconciliation in the background. Reconcile is idempotent, so provider
// redeliveries after an ack are harmless.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.signer.JobIDFrom(r.URL.Query().Get("token"))
	if err != nil {
		metrics.IncWebhook("bad_token")
		http.Error(w, "invalid callback token", http.StatusUnauthorized)
		return
	}

	var payload usecase.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid webhook body", http.StatusBadRequest)
		return
	}

	task := func(ctx context.Context) error {
		return s.reconcileUC.Reconcile(ctx, jobID, payload)
	}
	if err := s.dispatcher.Submit(task); err != nil {
		// Queue saturated; reconcile inline rather than dropping a terminal
		// transition.
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("dispatcher full, reconciling inline")
		if err := s.reconcileUC.Reconcile(r.Context(), jobID, payload); err != nil {
			s.log.Error().Err(err).Str("job_id", jobID).Msg("inline reconcile failed")
			http.Error(w, "reconciliation failed", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInsufficientBalance):
		http.Error(w, "insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, "too many submissions", http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrNotRetryable):
		http.Error(w, "job failure is not retryable", http.StatusConflict)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
