// Package dispatch hands analysis runs off the request path.
//
// Dispatch returns as soon as the run is handed off; a nil error means the run
// was scheduled, not that it started.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/TariqKichawele/BrightData/internal/analysis"
	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
)

// Runner executes one analysis run. *analysis.Engine implements it.
type Runner interface {
	Run(ctx context.Context, id uuid.UUID) analysis.Outcome
}

// runSafely runs the analysis and turns a panic into a failed job.
func runSafely(ctx context.Context, runner Runner, st store.Store, id uuid.UUID) (out analysis.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("analysis panicked: %v", r)
			slog.Error("panic in analysis run", "job_id", id, "error", r, "stack", string(debug.Stack()))
			err := st.PatchJob(context.WithoutCancel(ctx), id,
				store.WithStatus(models.JobStatusFailed),
				store.WithError(msg),
				store.WithCompletedAt(time.Now().UTC()),
			)
			if err != nil {
				slog.Error("failed to record panic on job", "job_id", id, "error", err)
			}
			out = analysis.Outcome{Kind: analysis.OutcomePanicked, Detail: msg, Err: fmt.Errorf("%s", msg), RecordErr: err}
		}
	}()
	return runner.Run(ctx, id)
}

// GoroutineDispatcher runs each analysis in a detached goroutine in this process.
type GoroutineDispatcher struct {
	runner Runner
	store  store.Store
	wg     sync.WaitGroup
}

func NewGoroutineDispatcher(runner Runner, st store.Store) *GoroutineDispatcher {
	return &GoroutineDispatcher{runner: runner, store: st}
}

// Dispatch starts the run on a context detached from ctx's cancellation, so
// the run outlives the HTTP request that triggered it.
func (d *GoroutineDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		out := runSafely(runCtx, d.runner, d.store, id)
		slog.Debug("analysis run finished", "job_id", id, "outcome", out.Kind.String())
	}()
	return nil
}

// Wait blocks until in-flight runs finish or ctx is done.
func (d *GoroutineDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
