package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/TariqKichawele/BrightData/internal/config"
	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskTypeAnalysis is the asynq task type for one analysis run.
const TaskTypeAnalysis = "analysis:run"

type taskPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// Enqueuer is the subset of *asynq.Client used for dispatch.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher enqueues analysis runs on Redis. Tasks are never retried;
// a failed run is visible on the job and retried only on request.
type AsynqDispatcher struct {
	client Enqueuer
	queue  string
}

func NewAsynqDispatcher(client Enqueuer, queue string) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, queue: queue}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	payload, err := json.Marshal(taskPayload{JobID: id})
	if err != nil {
		return fmt.Errorf("encode task payload: %w", err)
	}
	task := asynq.NewTask(TaskTypeAnalysis, payload)
	info, err := d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("enqueue analysis: %w", err)
	}
	slog.Debug("analysis task enqueued", "job_id", id, "task_id", info.ID, "queue", info.Queue)
	return nil
}

// NewTaskHandler returns the asynq handler that executes analysis tasks.
// Run failures are recorded on the job, so the handler only errors on
// undecodable payloads.
func NewTaskHandler(runner Runner, st store.Store) func(ctx context.Context, task *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var p taskPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("decode analysis task: %v: %w", err, asynq.SkipRetry)
		}
		if p.JobID == uuid.Nil {
			return fmt.Errorf("analysis task without job id: %w", asynq.SkipRetry)
		}
		out := runSafely(ctx, runner, st, p.JobID)
		slog.Info("analysis task finished", "job_id", p.JobID, "outcome", out.Kind.String())
		return nil
	}
}

// Worker consumes analysis tasks in-process.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker builds an asynq server bound to cfg.Queue.
func NewWorker(redisOpt asynq.RedisConnOpt, cfg config.DispatchConfig, runner Runner, st store.Store) *Worker {
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeAnalysis, NewTaskHandler(runner, st))
	return &Worker{server: server, mux: mux}
}

// Start begins processing in background goroutines.
func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

// Shutdown stops fetching new tasks and waits for active ones.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
