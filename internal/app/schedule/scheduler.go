package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	TaskExpireBooking = "booking:expire"
	TaskAssignmentDue = "booking:assignment_due"
	TaskSweepExpired  = "booking:sweep_expired"
)

var ErrUnknownTask = errors.New("schedule: no handler for task")

type Scheduler interface {
	Schedule(ctx context.Context, name string, payload any, runAt time.Time) error
}

// BookingTask is the payload of per-booking deferred tasks.
type BookingTask struct {
	BookingID string `json:"booking_id"`
}

type TaskHandler func(ctx context.Context, payload []byte) error

// Router maps task names to handlers for whichever scheduler backend runs them.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]TaskHandler)}
}

func (r *Router) Handle(name string, h TaskHandler) {
	if name == "" || h == nil {
		panic("schedule: empty task registration")
	}
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
}

func (r *Router) Dispatch(ctx context.Context, name string, payload []byte) error {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return h(ctx, payload)
}

// Names lists registered task names.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}

func Encode(payload any) ([]byte, error) {
	if raw, ok := payload.([]byte); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}

func DecodeBookingTask(payload []byte) (BookingTask, error) {
	var task BookingTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return BookingTask{}, err
	}
	if task.BookingID == "" {
		return BookingTask{}, errors.New("schedule: booking_id missing")
	}
	return task, nil
}
