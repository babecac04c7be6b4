// Package httpx exposes the evaluation scheduler as a JSON API.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/job"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/service"
)

// ProgressSubscriber delivers live events for one job.
type ProgressSubscriber interface {
	Subscribe(jobID string) (func(), <-chan job.Event)
}

const maxProgressWait = 60

// EvaluationHandlers provides HTTP handlers for evaluation jobs and the queue.
type EvaluationHandlers struct {
	Svc    *service.SchedulingService
	Events ProgressSubscriber // Optional: enables ?wait= on the progress endpoint
	Logger *slog.Logger
}

func (h *EvaluationHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	RenderError(w, r, err, h.Logger)
}

func jobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return "", false
	}
	return id, true
}

// Submit handles HTTP requests to enqueue a new evaluation job.
func (h *EvaluationHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	rec, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, rec)
}

// Get handles HTTP requests to retrieve one job record.
func (h *EvaluationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	rec, err := h.Svc.GetStatus(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// Cancel handles HTTP requests to cancel a pending job.
// A job that already left the queue yields {"cancelled": false}.
func (h *EvaluationHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	cancelled, err := h.Svc.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// Execute handles HTTP requests to run a queued batch job immediately.
// The response is written once the job has finished.
func (h *EvaluationHandlers) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	rec, err := h.Svc.ExecuteBatchJob(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// Progress handles HTTP requests for the latest progress snapshot of a job.
// With ?wait=N it blocks up to N seconds for the next event before answering.
func (h *EvaluationHandlers) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	wait := parseIntQuery(r, "wait", 0)
	if wait > maxProgressWait {
		wait = maxProgressWait
	}
	if wait > 0 && h.Events != nil {
		h.waitProgress(w, r, id, time.Duration(wait)*time.Second)
		return
	}

	snap, err := h.Svc.Progress(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

func (h *EvaluationHandlers) waitProgress(w http.ResponseWriter, r *http.Request, id string, dur time.Duration) {
	// Subscribe before reading so an event between the read and the wait is not lost.
	unsub, ch := h.Events.Subscribe(id)
	defer unsub()

	snap, err := h.Svc.Progress(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if snap.Status.IsTerminal() {
		WriteJSON(w, http.StatusOK, snap)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dur)
	defer cancel()

	select {
	case <-ctx.Done():
		if r.Context().Err() != nil {
			return
		}
	case <-ch:
	}

	snap, err = h.Svc.Progress(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// Records handles HTTP requests for the stored per-model evaluation records of a job.
func (h *EvaluationHandlers) Records(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	recs, err := h.Svc.Records(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, recs)
}

// List handles HTTP requests to list jobs filtered by kind and status.
func (h *EvaluationHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseJobFilters(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	jobs, err := h.Svc.ListJobs(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// History handles HTTP requests for recent batch jobs, newest first.
func (h *EvaluationHandlers) History(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Svc.GetHistory(r.Context(), parseIntQuery(r, "limit", 0), parseIntQuery(r, "offset", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// QueueStatus handles HTTP requests for a point-in-time view of the work queue.
func (h *EvaluationHandlers) QueueStatus(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.Svc.QueueStatus())
}

// Purge handles HTTP requests to cancel every pending job.
func (h *EvaluationHandlers) Purge(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.Purge(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"purged": n})
}
