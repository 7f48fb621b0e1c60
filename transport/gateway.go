package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"crosstalk/contract"
	"crosstalk/domain"
)

const maxFrameSize = 16 * 1024

// syncConn serializes writes: the write pump and inline error replies
// share one websocket, and gorilla connections allow a single writer.
type syncConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *syncConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Gateway terminates websocket connections and translates frames to
// room-service calls. Everything stateful lives behind the service;
// the gateway only owns the read/write pumps.
type Gateway struct {
	log        *slog.Logger
	service    contract.IRoomService
	bufferSize int
	upgrader   websocket.Upgrader
}

func NewGateway(log *slog.Logger, service contract.IRoomService, bufferSize int) *Gateway {
	return &Gateway{
		log:        log,
		service:    service,
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// room codes are the only admission control, same as the
			// rest of the system
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP surface: a health probe and the per-room
// websocket endpoint.
func (g *Gateway) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws/{room}", g.handleWS)
	return r
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	room := domain.RoomCode(chi.URLParam(r, "room"))
	if room == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)
	sc := &syncConn{conn: conn}

	connID := domain.ConnID(uuid.NewString())
	sink := NewSink(g.bufferSize)
	ctx := r.Context()

	// The first frame must be a join; everything before it has no
	// identity to route under.
	joinFrame, err := g.readFrame(conn, sc)
	if err != nil {
		return
	}
	if joinFrame.Type != "join" {
		g.writeError(sc, "first frame must be join")
		return
	}
	joinCmd := domain.JoinCommand{
		Room:     room,
		Conn:     connID,
		Role:     domain.Role(joinFrame.Role),
		Identity: domain.Identity(joinFrame.Identity),
	}
	if err := g.service.Join(ctx, joinCmd, sink); err != nil {
		g.log.Warn("Join failed", "room", room, "error", err)
		g.writeError(sc, "join failed")
		return
	}
	defer g.service.Leave(room, connID)

	done := make(chan struct{})
	go g.writePump(sc, sink, done)
	defer close(done)

	g.readPump(ctx, conn, sc, room, connID)
}

// readPump decodes inbound frames until the client goes away. A bad
// frame is answered and skipped, never fatal.
func (g *Gateway) readPump(ctx context.Context, conn *websocket.Conn, sc *syncConn, room domain.RoomCode, connID domain.ConnID) {
	for {
		frame, err := g.readFrame(conn, sc)
		if err != nil {
			g.log.Debug(fmt.Sprintf("Client %s disconnected from %s", connID, room))
			return
		}

		switch frame.Type {
		case "join":
			g.writeError(sc, "already joined")
		case "set_role":
			if err := g.service.SetRole(ctx, domain.SetRoleCommand{
				Room: room, Conn: connID, Role: domain.Role(frame.Role),
			}); err != nil {
				g.log.Debug("set_role rejected", "conn", connID, "error", err)
			}
		case "toggle_pause":
			if err := g.service.TogglePause(ctx, domain.TogglePauseCommand{
				Room: room, Conn: connID, Pause: frame.Pause,
			}); err != nil {
				g.log.Debug("toggle_pause rejected", "conn", connID, "error", err)
			}
		case "start_interject":
			if err := g.service.StartInterject(ctx, domain.StartInterjectCommand{
				Room: room, Conn: connID,
			}); err != nil {
				g.log.Debug("start_interject rejected", "conn", connID, "error", err)
			}
		case "send_message":
			if err := g.service.Send(ctx, domain.SendMessageCommand{
				Room:            room,
				Conn:            connID,
				Body:            frame.Body,
				Emergency:       frame.Emergency,
				TaskState:       frame.TaskState,
				TaskDescription: frame.TaskDescription,
				At:              time.Now().UTC(),
			}); err != nil {
				g.writeError(sc, err.Error())
			}
		case "mark_read":
			if err := g.service.MarkRead(ctx, domain.MarkReadCommand{
				Room: room, Conn: connID, MessageIDs: frame.ParsedMessageIDs(),
			}); err != nil {
				g.log.Debug("mark_read rejected", "conn", connID, "error", err)
			}
		}
	}
}

// writePump serializes events for one connection, preserving the order
// the orchestrator emitted them in.
func (g *Gateway) writePump(conn *syncConn, sink *Sink, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case evt := <-sink.Events:
			frame, ok := EncodeEvent(evt)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(frame); err != nil {
				g.log.Debug("Failed to push frame", "error", err)
				return
			}
		}
	}
}

func (g *Gateway) readFrame(conn *websocket.Conn, sc *syncConn) (ClientFrame, error) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return ClientFrame{}, err
		}
		frame, err := DecodeFrame(raw)
		if err != nil {
			g.writeError(sc, err.Error())
			continue
		}
		return frame, nil
	}
}

func (g *Gateway) writeError(conn *syncConn, reason string) {
	_ = conn.WriteJSON(ServerFrame{Type: "error", Reason: reason})
}
