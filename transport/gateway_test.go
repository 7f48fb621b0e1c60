package transport

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"crosstalk/contract"
	"crosstalk/domain"
	"crosstalk/domain/event"
)

// fakeService records what the gateway asked for and hands back the
// sink so tests can push events to the client.
type fakeService struct {
	mu    sync.Mutex
	sink  contract.EventSink
	joins []domain.JoinCommand
	sends []domain.SendMessageCommand
	reads []domain.MarkReadCommand
}

func (s *fakeService) Join(_ context.Context, cmd domain.JoinCommand, sink contract.EventSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, cmd)
	s.sink = sink
	return nil
}

func (s *fakeService) Leave(domain.RoomCode, domain.ConnID) {}

func (s *fakeService) SetRole(context.Context, domain.SetRoleCommand) error { return nil }

func (s *fakeService) Send(_ context.Context, cmd domain.SendMessageCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, cmd)
	return nil
}

func (s *fakeService) TogglePause(context.Context, domain.TogglePauseCommand) error { return nil }

func (s *fakeService) StartInterject(context.Context, domain.StartInterjectCommand) error {
	return nil
}

func (s *fakeService) MarkRead(_ context.Context, cmd domain.MarkReadCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, cmd)
	return nil
}

func dialRoom(t *testing.T, server *httptest.Server, room string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func Test_Gateway_Join_Then_Send(t *testing.T) {
	req := require.New(t)
	service := &fakeService{}
	gateway := NewGateway(slog.Default(), service, 8)
	server := httptest.NewServer(gateway.Router())
	defer server.Close()

	conn := dialRoom(t, server, "LOBBY")

	// When the client joins and sends a message
	req.NoError(conn.WriteJSON(ClientFrame{Type: "join", Role: "human"}))
	req.NoError(conn.WriteJSON(ClientFrame{Type: "send_message", Body: "hello", Emergency: true}))

	req.Eventually(func() bool {
		service.mu.Lock()
		defer service.mu.Unlock()
		return len(service.joins) == 1 && len(service.sends) == 1
	}, time.Second, 5*time.Millisecond)

	service.mu.Lock()
	defer service.mu.Unlock()
	req.Equal(domain.RoomCode("LOBBY"), service.joins[0].Room)
	req.Equal(domain.RoleHuman, service.joins[0].Role)
	req.Equal("hello", service.sends[0].Body)
	req.True(service.sends[0].Emergency)
	req.Equal(service.joins[0].Conn, service.sends[0].Conn)
}

func Test_Gateway_Pushes_Events_To_Client(t *testing.T) {
	req := require.New(t)
	service := &fakeService{}
	gateway := NewGateway(slog.Default(), service, 8)
	server := httptest.NewServer(gateway.Router())
	defer server.Close()

	conn := dialRoom(t, server, "LOBBY")
	req.NoError(conn.WriteJSON(ClientFrame{Type: "join", Role: "ai"}))

	req.Eventually(func() bool {
		service.mu.Lock()
		defer service.mu.Unlock()
		return service.sink != nil
	}, time.Second, 5*time.Millisecond)

	// When the routing side emits an event into the connection sink
	service.mu.Lock()
	sink := service.sink
	service.mu.Unlock()
	req.NoError(sink.Consume(context.Background(), event.PauseUpdated{Room: "LOBBY", Paused: true}))

	// Then the client receives the wire frame
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	var frame ServerFrame
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("pause_updated", frame.Type)
	req.NotNil(frame.Paused)
	req.True(*frame.Paused)
}

func Test_Gateway_First_Frame_Must_Be_Join(t *testing.T) {
	req := require.New(t)
	service := &fakeService{}
	gateway := NewGateway(slog.Default(), service, 8)
	server := httptest.NewServer(gateway.Router())
	defer server.Close()

	conn := dialRoom(t, server, "LOBBY")

	// When the very first frame is not a join
	req.NoError(conn.WriteJSON(ClientFrame{Type: "send_message", Body: "too soon"}))

	// Then the gateway answers with an error and closes
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	var frame ServerFrame
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("error", frame.Type)

	service.mu.Lock()
	defer service.mu.Unlock()
	req.Empty(service.joins)
	req.Empty(service.sends)
}

func Test_Gateway_Invalid_Frame_Is_Answered_Not_Fatal(t *testing.T) {
	req := require.New(t)
	service := &fakeService{}
	gateway := NewGateway(slog.Default(), service, 8)
	server := httptest.NewServer(gateway.Router())
	defer server.Close()

	conn := dialRoom(t, server, "LOBBY")
	req.NoError(conn.WriteJSON(ClientFrame{Type: "join", Role: "human"}))

	// When a malformed frame slips in
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"time_travel"}`)))

	// Then an error frame comes back and the connection keeps working
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	var frame ServerFrame
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("error", frame.Type)

	req.NoError(conn.WriteJSON(ClientFrame{Type: "send_message", Body: "still here"}))
	req.Eventually(func() bool {
		service.mu.Lock()
		defer service.mu.Unlock()
		return len(service.sends) == 1
	}, time.Second, 5*time.Millisecond)
}
