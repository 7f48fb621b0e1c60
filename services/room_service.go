package services

import (
	"context"

	"crosstalk/contract"
	"crosstalk/domain"
	"crosstalk/runtime"
)

// RoomService is the thin surface the transport layer talks to. It
// keeps the gateway decoupled from the orchestrator's concrete type.
type RoomService struct {
	orchestrator *runtime.Orchestrator
}

var _ contract.IRoomService = (*RoomService)(nil)

func NewRoomService(o *runtime.Orchestrator) *RoomService {
	return &RoomService{orchestrator: o}
}

func (s *RoomService) Join(ctx context.Context, cmd domain.JoinCommand, sink contract.EventSink) error {
	return s.orchestrator.Join(ctx, cmd, sink)
}

func (s *RoomService) Leave(room domain.RoomCode, conn domain.ConnID) {
	s.orchestrator.Leave(room, conn)
}

func (s *RoomService) SetRole(ctx context.Context, cmd domain.SetRoleCommand) error {
	return s.orchestrator.SetRole(ctx, cmd)
}

func (s *RoomService) Send(ctx context.Context, cmd domain.SendMessageCommand) error {
	return s.orchestrator.Send(ctx, cmd)
}

func (s *RoomService) TogglePause(ctx context.Context, cmd domain.TogglePauseCommand) error {
	return s.orchestrator.TogglePause(ctx, cmd)
}

func (s *RoomService) StartInterject(ctx context.Context, cmd domain.StartInterjectCommand) error {
	return s.orchestrator.StartInterject(ctx, cmd)
}

func (s *RoomService) MarkRead(ctx context.Context, cmd domain.MarkReadCommand) error {
	return s.orchestrator.MarkRead(ctx, cmd)
}
