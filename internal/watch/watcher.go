// Package watch maintains a client-side view of an owner's jobs from the
// realtime change stream: all recent jobs newest first, the subset still
// processing, and user-facing alerts on failed terminal transitions.
package watch

import (
	"sync"

	"github.com/rs/zerolog"

	"media-generation-jobs/internal/domain/errclass"
	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/domain/ports/adapter"
)

// Alert surfaces a failed job to the user. Retryable drives whether the UI
// offers the retry affordance; content violations get their own alert style.
type Alert struct {
	JobID     string
	Kind      errclass.ErrorKind
	Message   string
	Retryable bool
}

const defaultMaxJobs = 100

type Watcher struct {
	mu     sync.Mutex
	all    []*model.Job          // newest first
	active map[string]*model.Job // status == processing

	ownerID string
	tool    model.ToolKind
	src     adapter.JobEventSource
	sub     adapter.JobSubscription
	alerts  chan Alert
	max     int
	log     *zerolog.Logger
}

func NewWatcher(src adapter.JobEventSource, ownerID string, tool model.ToolKind, logger *zerolog.Logger) *Watcher {
	l := logger.With().Str("component", "Watcher").Str("owner_id", ownerID).Logger()
	return &Watcher{
		active:  make(map[string]*model.Job),
		ownerID: ownerID,
		tool:    tool,
		src:     src,
		alerts:  make(chan Alert, 16),
		max:     defaultMaxJobs,
		log:     &l,
	}
}

func (w *Watcher) Start() error {
	sub, err := w.src.Subscribe(w.ownerID, w.tool, w.Apply)
	if err != nil {
		return err
	}
	w.sub = sub
	return nil
}

func (w *Watcher) Stop() {
	if w.sub != nil {
		_ = w.sub.Unsubscribe()
	}
}

// Apply folds one change event into the view. Events may arrive duplicated
// or out of order; application is idempotent (upsert by id) and conflicting
// updates for the same job converge on the higher status rank.
func (w *Watcher) Apply(ev model.JobEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch ev.Type {
	case model.JobEventInsert, model.JobEventUpdate:
		if ev.Job == nil {
			w.log.Warn().Str("job_id", ev.JobID).Msg("drop event without job body")
			return
		}
		w.upsert(ev.Job)
	case model.JobEventDelete:
		w.remove(ev.JobID)
	}
}

func (w *Watcher) upsert(job *model.Job) {
	prev := w.find(job.ID)
	if prev != nil && prev.Status.Rank() > job.Status.Rank() {
		// A stale update arriving after the terminal one; ignore so the
		// view converges regardless of delivery order.
		return
	}

	cp := job.Clone()
	if prev == nil {
		w.all = append([]*model.Job{cp}, w.all...)
		if len(w.all) > w.max {
			w.all = w.all[:w.max]
		}
	} else {
		for i, j := range w.all {
			if j.ID == cp.ID {
				w.all[i] = cp
				break
			}
		}
	}

	if cp.Status == model.JobStatusProcessing {
		w.active[cp.ID] = cp
		return
	}
	if cp.Status.Terminal() {
		delete(w.active, cp.ID)
		alreadyFailed := prev != nil && prev.Status == model.JobStatusFailed
		if cp.Status == model.JobStatusFailed && cp.Error != nil && !alreadyFailed {
			w.emitAlert(cp)
		}
	}
}

func (w *Watcher) remove(jobID string) {
	delete(w.active, jobID)
	for i, j := range w.all {
		if j.ID == jobID {
			w.all = append(w.all[:i], w.all[i+1:]...)
			return
		}
	}
}

func (w *Watcher) find(jobID string) *model.Job {
	for _, j := range w.all {
		if j.ID == jobID {
			return j
		}
	}
	return nil
}

func (w *Watcher) emitAlert(job *model.Job) {
	alert := Alert{
		JobID:     job.ID,
		Kind:      job.Error.Kind,
		Message:   job.Error.Message,
		Retryable: job.Error.Retryable,
	}
	select {
	case w.alerts <- alert:
	default:
		w.log.Warn().Str("job_id", job.ID).Msg("alert channel full, dropping")
	}
}

// Jobs returns the recent-jobs view, newest first.
func (w *Watcher) Jobs() []*model.Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*model.Job, len(w.all))
	for i, j := range w.all {
		out[i] = j.Clone()
	}
	return out
}

// Active returns the jobs still processing.
func (w *Watcher) Active() []*model.Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*model.Job, 0, len(w.active))
	for _, j := range w.active {
		out = append(out, j.Clone())
	}
	return out
}

func (w *Watcher) Alerts() <-chan Alert { return w.alerts }
