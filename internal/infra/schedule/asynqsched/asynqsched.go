package asynqsched

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	appschedule "divineconnect/internal/app/schedule"
)

const queue = "bookings"

// Scheduler enqueues tasks into Redis through asynq so they survive restarts.
type Scheduler struct {
	client *asynq.Client
}

func NewScheduler(opt asynq.RedisClientOpt) *Scheduler {
	return &Scheduler{client: asynq.NewClient(opt)}
}

// Schedule uses the booking id as task id where there is one so re-scheduling is a no-op.
func (s *Scheduler) Schedule(ctx context.Context, name string, payload any, runAt time.Time) error {
	raw, err := appschedule.Encode(payload)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.ProcessAt(runAt), asynq.Queue(queue), asynq.MaxRetry(5)}
	if task, ok := payload.(appschedule.BookingTask); ok && task.BookingID != "" {
		opts = append(opts, asynq.TaskID(name+":"+task.BookingID))
	}
	_, err = s.client.EnqueueContext(ctx, asynq.NewTask(name, raw), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (s *Scheduler) Close() error {
	return s.client.Close()
}

// Worker runs the asynq server, handing every task to the router.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

func NewWorker(opt asynq.RedisClientOpt, router *appschedule.Router, concurrency int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
	})
	mux := asynq.NewServeMux()
	for _, name := range router.Names() {
		taskName := name
		mux.HandleFunc(taskName, func(ctx context.Context, task *asynq.Task) error {
			if err := router.Dispatch(ctx, taskName, task.Payload()); err != nil {
				logger.Warn("task failed", "task", taskName, "error", err)
				return err
			}
			return nil
		})
	}
	return &Worker{server: srv, mux: mux, logger: logger}
}

// Start runs the server in the background.
func (w *Worker) Start() error {
	w.logger.Info("task worker starting", "queue", queue)
	return w.server.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// PeriodicSweep registers the sweep task on a cron expression, for example "@every 1m".
func PeriodicSweep(opt asynq.RedisClientOpt, cronExpr string) (*asynq.Scheduler, error) {
	sched := asynq.NewScheduler(opt, nil)
	if _, err := sched.Register(cronExpr, asynq.NewTask(appschedule.TaskSweepExpired, nil), asynq.Queue(queue)); err != nil {
		return nil, err
	}
	return sched, nil
}

var _ appschedule.Scheduler = (*Scheduler)(nil)
