//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"crosstalk/domain"
	"crosstalk/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one consumer of outbound events: a connected client's
// write pump, a projection, or a telemetry collector.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the realtime-channel collaborator: room membership,
// per-connection unicast and room-wide broadcast.
type IRegistry interface {
	Subscribe(conn domain.ConnID, room domain.RoomCode, sink EventSink)
	Unsubscribe(conn domain.ConnID, room domain.RoomCode)
	Sink(conn domain.ConnID) (EventSink, bool)
	SinksForRoom(room domain.RoomCode) []EventSink
}

// IRoomService is the surface the transport layer talks to.
type IRoomService interface {
	Join(ctx context.Context, cmd domain.JoinCommand, sink EventSink) error
	Leave(room domain.RoomCode, conn domain.ConnID)
	SetRole(ctx context.Context, cmd domain.SetRoleCommand) error
	Send(ctx context.Context, cmd domain.SendMessageCommand) error
	TogglePause(ctx context.Context, cmd domain.TogglePauseCommand) error
	StartInterject(ctx context.Context, cmd domain.StartInterjectCommand) error
	MarkRead(ctx context.Context, cmd domain.MarkReadCommand) error
}
