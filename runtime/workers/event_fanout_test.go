package workers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crosstalk/domain"
	"crosstalk/domain/event"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestEventFanout_Feeds_Every_Sink(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	events := make(chan event.DomainEvent, 8)
	sink1 := &recordingSink{}
	sink2 := &recordingSink{}

	worker := NewEventFanout(log, events, sink1).Add(sink2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// When two events flow through the telemetry channel
	events <- event.PauseUpdated{Room: domain.RoomCode("LOBBY"), Paused: true}
	events <- event.Notice{Room: domain.RoomCode("LOBBY"), Text: "released", At: time.Now()}

	// Then both sinks observe both events
	req.Eventually(func() bool {
		return sink1.count() == 2 && sink2.count() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestEventFanout_Stops_On_Context_Cancel(t *testing.T) {
	req := require.New(t)
	events := make(chan event.DomainEvent)

	worker := NewEventFanout(slog.Default(), events, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("fanout should stop when the context is canceled")
	}
}
