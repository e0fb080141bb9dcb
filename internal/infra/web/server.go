package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"media-generation-jobs/internal/domain/ports/adapter"
	"media-generation-jobs/internal/infra/worker"
	"media-generation-jobs/internal/usecase"
)

// Dispatcher runs webhook reconciliation off the request path; *worker.Pool
// satisfies it.
type Dispatcher interface {
	Submit(task worker.Task) error
}

type Server struct {
	submitUC    usecase.SubmitUseCase
	jobsUC      usecase.JobsUseCase
	reconcileUC usecase.ReconcileUseCase
	signer      adapter.CallbackSigner
	dispatcher  Dispatcher
	log         *zerolog.Logger
}

func NewServer(
	submitUC usecase.SubmitUseCase,
	jobsUC usecase.JobsUseCase,
	reconcileUC usecase.ReconcileUseCase,
	signer adapter.CallbackSigner,
	dispatcher Dispatcher,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		submitUC:    submitUC,
		jobsUC:      jobsUC,
		reconcileUC: reconcileUC,
		signer:      signer,
		dispatcher:  dispatcher,
		log:         &l,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(traceID, requestLog(s.log), recoverer(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs", s.handleList)
		r.Get("/jobs/{id}", s.handleGet)
		r.Post("/jobs/{id}/retry", s.handleRetry)
		r.Delete("/jobs/{id}", s.handleDelete)
		r.Post("/webhook/generation", s.handleWebhook)
	})
	return r
}
