package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"

	"crosstalk/transport"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddr string `envconfig:"SERVER_ADDR" default:"localhost:8080"`
	Room       string `envconfig:"ROOM" default:"LOBBY"`
	Role       string `envconfig:"ROLE" default:"human"`
	// IDENTITY reconnects an existing participant instead of minting a new one
	Identity string `envconfig:"IDENTITY"`
	// COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"COLOURS" default:"true"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the websocket lifecycle, configuration loading, and the
// stdin command loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect and join.
	wsURL := url.URL{Scheme: "ws", Host: config.ServerAddr, Path: "/ws/" + config.Room}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", wsURL.String(), err)
	}
	defer func() {
		_ = conn.Close()
	}()

	join := transport.ClientFrame{Type: "join", Role: config.Role, Identity: config.Identity}
	if err := conn.WriteJSON(join); err != nil {
		return exitRuntime, fmt.Errorf("join failed: %w", err)
	}

	color.Green.Printf(">>> Connected to %s, room %s (Ctrl+C to quit)\n", config.ServerAddr, config.Room)
	printHelp()

	// 4. Reception loop.
	done := make(chan error, 1)
	go func() {
		for {
			var frame transport.ServerFrame
			if err := conn.ReadJSON(&frame); err != nil {
				done <- err
				return
			}
			render(frame)
		}
	}()

	// 5. Command loop: stdin lines become client frames.
	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	for {
		select {
		case <-ctx.Done():
			color.Gray.Println("Stopping client...")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return exitOK, nil
		case err := <-done:
			if ctx.Err() != nil {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection closed: %w", err)
		case line, ok := <-input:
			if !ok {
				return exitOK, nil
			}
			frame, ok := parseLine(line)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(frame); err != nil {
				return exitRuntime, fmt.Errorf("write failed: %w", err)
			}
		}
	}
}

func printHelp() {
	color.Gray.Println("  <text>                send a message")
	color.Gray.Println("  /urgent <text>        send an emergency message (bypasses pause)")
	color.Gray.Println("  /task <state> <text>  send with a task state (started|progress|done|failed)")
	color.Gray.Println("  /pause | /resume      toggle the human pause (primary human only)")
	color.Gray.Println("  /interject            arm an interjection (primary human only)")
	color.Gray.Println("  /read <id> [id...]    mark messages as read")
}

// parseLine maps a stdin line to a client frame. Unknown slash
// commands are dropped with a hint rather than sent.
func parseLine(line string) (transport.ClientFrame, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return transport.ClientFrame{}, false
	}
	if !strings.HasPrefix(line, "/") {
		return transport.ClientFrame{Type: "send_message", Body: line}, true
	}
	cmd, rest, _ := strings.Cut(line[1:], " ")
	switch cmd {
	case "urgent":
		if rest == "" {
			color.Red.Println("usage: /urgent <text>")
			return transport.ClientFrame{}, false
		}
		return transport.ClientFrame{Type: "send_message", Body: rest, Emergency: true}, true
	case "task":
		state, body, _ := strings.Cut(rest, " ")
		if state == "" || body == "" {
			color.Red.Println("usage: /task <state> <text>")
			return transport.ClientFrame{}, false
		}
		return transport.ClientFrame{Type: "send_message", Body: body, TaskState: state}, true
	case "pause":
		return transport.ClientFrame{Type: "toggle_pause", Pause: true}, true
	case "resume":
		return transport.ClientFrame{Type: "toggle_pause", Pause: false}, true
	case "interject":
		return transport.ClientFrame{Type: "start_interject"}, true
	case "read":
		ids := strings.Fields(rest)
		if len(ids) == 0 {
			color.Red.Println("usage: /read <id> [id...]")
			return transport.ClientFrame{}, false
		}
		return transport.ClientFrame{Type: "mark_read", MessageIDs: ids}, true
	default:
		color.Red.Printf("unknown command /%s\n", cmd)
		return transport.ClientFrame{}, false
	}
}

func render(frame transport.ServerFrame) {
	switch frame.Type {
	case "new_message":
		renderMessage(*frame.Message, frame.Interjection)
	case "status_update":
		color.Gray.Printf("· %s is now %s\n", shortID(frame.MessageID), frame.Status)
	case "read_batch_update":
		color.Gray.Printf("· %d message(s) read\n", len(frame.MessageIDs))
	case "pause_updated":
		if frame.Paused != nil && *frame.Paused {
			color.Yellow.Println("⏸  Room paused: AI senders are on hold")
		} else {
			color.Yellow.Println("▶  Room resumed")
		}
	case "interject_updated":
		if frame.InterjectActive != nil && *frame.InterjectActive {
			color.Magenta.Println("✋ Interjection armed: AI traffic blocked until an emergency message")
		} else {
			color.Magenta.Println("✋ Interjection cleared")
		}
	case "pending_delay_update":
		color.Gray.Printf("· %d delayed message(s) pending\n", len(frame.Pending))
	case "released_messages":
		color.Yellow.Printf("▶  %d held message(s) released\n", len(frame.MessageIDs))
	case "role_bound":
		color.Green.Printf("✔  You are %s (%s, identity %s)\n", frame.DisplayName, frame.Role, frame.Identity)
	case "presence_update":
		state := "offline"
		if frame.Online != nil && *frame.Online {
			state = "online"
		}
		color.Gray.Printf("· %s is %s\n", frame.DisplayName, state)
	case "notice":
		color.Yellow.Printf("ℹ  %s\n", frame.Text)
	case "history_snapshot":
		renderHistory(frame)
	case "denied":
		color.Red.Printf("✖  Denied: %s\n", frame.Reason)
	}
}

func renderMessage(msg transport.WireMessage, interjection bool) {
	stamp := msg.CreatedAt.Local().Format(time.TimeOnly)
	line := fmt.Sprintf("[%s] %s: %s", stamp, msg.SenderName, msg.Body)
	switch {
	case interjection:
		color.New(color.BgBlack, color.FgMagenta).Println(line + "  (interjection)")
	case msg.Emergency:
		color.New(color.BgBlack, color.FgRed).Println(line + "  (emergency)")
	case msg.SenderRole == "ai":
		color.Cyan.Println(line)
	default:
		color.White.Println(line)
	}
}

// renderHistory dumps the join snapshot as a table, oldest first.
func renderHistory(frame transport.ServerFrame) {
	if len(frame.Messages) == 0 {
		color.Gray.Println("· No history yet")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "From", "Status", "Body"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, msg := range frame.Messages {
		status := msg.Status
		if msg.HeldForAI && msg.ReleasedAt == nil {
			status += " (held)"
		}
		table.Append([]string{
			msg.CreatedAt.Local().Format(time.TimeOnly),
			msg.SenderName,
			status,
			msg.Body,
		})
	}
	table.Render()

	if frame.Paused != nil && *frame.Paused {
		color.Yellow.Println("⏸  Room is currently paused")
	}
	if frame.InterjectActive != nil && *frame.InterjectActive {
		color.Magenta.Println("✋ Interjection is currently armed")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
