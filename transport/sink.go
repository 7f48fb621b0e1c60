package transport

import (
	"context"

	"crosstalk/domain/event"
)

// Sink bridges the orchestrator to one websocket write pump.
type Sink struct {
	Events chan event.DomainEvent
}

func NewSink(bufferSize int) *Sink {
	return &Sink{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume is called by the orchestrator from routing handlers; it must
// never block them. A full channel means the client is too slow and
// the event is dropped for that connection only.
func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
