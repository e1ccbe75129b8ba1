package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appschedule "divineconnect/internal/app/schedule"
)

func TestTimersDispatchDueTask(t *testing.T) {
	router := appschedule.NewRouter()
	got := make(chan string, 1)
	router.Handle(appschedule.TaskExpireBooking, func(ctx context.Context, payload []byte) error {
		task, err := appschedule.DecodeBookingTask(payload)
		if err != nil {
			return err
		}
		got <- task.BookingID
		return nil
	})
	timers := NewTimers(router, nil)
	defer timers.Close()

	require.NoError(t, timers.Schedule(context.Background(), appschedule.TaskExpireBooking,
		appschedule.BookingTask{BookingID: "b1"}, time.Now().Add(-time.Second)))

	select {
	case id := <-got:
		assert.Equal(t, "b1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestTimersCloseStopsPending(t *testing.T) {
	router := appschedule.NewRouter()
	router.Handle(appschedule.TaskAssignmentDue, func(context.Context, []byte) error {
		t.Error("task should not run")
		return nil
	})
	timers := NewTimers(router, nil)
	require.NoError(t, timers.Schedule(context.Background(), appschedule.TaskAssignmentDue,
		appschedule.BookingTask{BookingID: "b1"}, time.Now().Add(time.Hour)))
	assert.Equal(t, 1, timers.Pending())

	timers.Close()
	assert.Equal(t, 0, timers.Pending())
	assert.Error(t, timers.Schedule(context.Background(), appschedule.TaskAssignmentDue, nil, time.Now()))
}

func TestSweeperStopsWithContext(t *testing.T) {
	router := appschedule.NewRouter()
	ran := make(chan struct{}, 8)
	router.Handle(appschedule.TaskSweepExpired, func(context.Context, []byte) error {
		ran <- struct{}{}
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&Sweeper{Router: router, Interval: 10 * time.Millisecond}).Run(ctx) }()

	<-ran
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
