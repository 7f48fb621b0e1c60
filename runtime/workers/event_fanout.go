package workers

import (
	"context"
	"log/slog"

	"crosstalk/contract"
	"crosstalk/domain/event"
)

// Ensure *EventFanout implements the contract.Worker interface at
// compile time.
var _ contract.Worker = (*EventFanout)(nil)

// EventFanout consumes the orchestrator's telemetry event stream and
// feeds the permanent sinks (timeline projection, stats collectors).
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering, durability, or retries. It is intended for observability
// and side effects, never for routing logic: client delivery does not
// go through here.
type EventFanout struct {
	log    *slog.Logger
	events chan event.DomainEvent
	sinks  []contract.EventSink
}

func NewEventFanout(log *slog.Logger, events chan event.DomainEvent, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, events: events, sinks: sinks}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt := <-w.events:
			w.fanout(ctx, evt)
		}
	}
}

func (w *EventFanout) fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			w.log.Debug("Telemetry sink rejected event", "error", err)
		}
	}
}
