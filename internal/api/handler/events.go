package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/TariqKichawele/BrightData/internal/api/response"
	"github.com/TariqKichawele/BrightData/internal/cache"
)

const heartbeatInterval = 15 * time.Second

// NewJobEventsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/events.
// It streams status changes as server-sent events and ends once the job is
// completed or failed. Polling the job stays the source of truth.
func NewJobEventsHandler(svc JobService, sub cache.Subscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadOwnedJob(w, r, svc)
		if !ok {
			return
		}
		ctx := r.Context()
		log := slog.With("job_id", job.ID)

		// Subscribe before re-reading so no transition falls between the two.
		events, unsubscribe, err := sub.SubscribeJobEvents(ctx, job.ID)
		if err != nil {
			log.Error("events.subscribe_failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, "EVENTS_UNAVAILABLE", "Job events are unavailable", nil)
			return
		}
		defer func() { _ = unsubscribe() }()

		current, err := svc.Get(ctx, job.ID)
		if err != nil {
			writeJobError(w, err)
			return
		}

		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		first := cache.JobEvent{JobID: current.ID, Status: current.Status, At: current.UpdatedAt}
		if current.Error != nil {
			first.Error = *current.Error
		}
		if err := writeEvent(w, rc, first); err != nil || first.Status.Terminal() {
			return
		}

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
			case ev, open := <-events:
				if !open {
					return
				}
				if err := writeEvent(w, rc, ev); err != nil {
					log.Debug("events.write_failed", "error", err)
					return
				}
				if ev.Status.Terminal() {
					return
				}
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev cache.JobEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", b); err != nil {
		return err
	}
	return rc.Flush()
}
