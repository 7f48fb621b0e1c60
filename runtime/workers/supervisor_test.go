package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingWorker drives supervision scenarios: it counts its runs and
// fails, panics or succeeds on demand.
type countingWorker struct {
	calls  atomic.Int64
	behave func(ctx context.Context) error
}

func (w *countingWorker) Run(ctx context.Context) error {
	w.calls.Add(1)
	return w.behave(ctx)
}

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	worker := &countingWorker{behave: func(ctx context.Context) error {
		panic("boom")
	}}

	sup := NewSupervisor(log)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	go sup.Add(worker).Run(ctx)

	// Waiting for panics and restarts
	time.Sleep(900 * time.Millisecond)

	req.GreaterOrEqual(worker.calls.Load(), int64(2))
}

func TestSupervisor_RestartOnError(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	worker := &countingWorker{behave: func(ctx context.Context) error {
		return fmt.Errorf("transient failure")
	}}

	sup := NewSupervisor(log)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	go sup.Add(worker).Run(ctx)

	time.Sleep(900 * time.Millisecond)

	req.GreaterOrEqual(worker.calls.Load(), int64(2))
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	// Given a worker terminating properly
	worker := &countingWorker{behave: func(ctx context.Context) error {
		return nil
	}}

	sup := NewSupervisor(log)

	// Given a channel to notify when Run() terminated
	done := make(chan struct{})

	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// Then the supervisor detected a success and never restarted
		req.Equal(int64(1), worker.calls.Load())
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_Stop_Cancels_Workers(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	started := make(chan struct{})
	worker := &countingWorker{behave: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}

	sup := NewSupervisor(log)
	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	<-started

	// When Stop is called
	sup.Stop()

	// Then Run returns once the worker has wound down
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should have stopped after Stop()")
	}
}
