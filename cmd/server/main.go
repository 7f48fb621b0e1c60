package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"crosstalk/internal"
	"crosstalk/moderation"
	"crosstalk/observability"
	"crosstalk/projection"
	"crosstalk/repositories"
	"crosstalk/runtime"
	"crosstalk/runtime/workers"
	"crosstalk/services"
	"crosstalk/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the gateway and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & Routing engine
	roomRepository := repositories.NewRoomRepository(db, log)
	participantRepository := repositories.NewParticipantRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)

	registry := runtime.NewRegistry()
	monitoring := observability.NewMonitoringManager()

	orchestrator := runtime.NewOrchestrator(
		log, registry, roomRepository, participantRepository, messageRepository,
		config.DelayWindow, config.BufferSize,
	).WithMonitoring(monitoring)

	if config.CensoredWordsPath != "" {
		words, err := moderation.LoadWords(config.CensoredWordsPath)
		if err != nil {
			return fmt.Errorf("loading censored words: %w", err)
		}
		maskingChar, err := characterRune(config.MaskingChar)
		if err != nil {
			return err
		}
		moderator, err := moderation.NewModerator(words, maskingChar)
		if err != nil {
			return fmt.Errorf("building moderator: %w", err)
		}
		orchestrator.WithCensor(moderator)
		log.Info(fmt.Sprintf("%d censored words loaded", len(words)))
	}

	// 4. Supervision: telemetry fanout + heartbeat
	timeline := projection.NewTimeline(config.TimelineLimit)
	fanout := workers.NewEventFanout(log, orchestrator.TelemetryEvents(), timeline)
	heartbeat := workers.NewHeartbeatWorker(log, monitoring, config.HeartbeatInterval)

	sup := workers.NewSupervisor(log)
	sup.Add(fanout, heartbeat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 5. Debug dashboard over the raw store
	internal.StartDebugServer(db, config.DebugPort, "/inspect", messageMapper, func() map[string]any {
		stats := monitoring.GetLatest()
		return map[string]any{
			"Rooms":   stats.ActiveRooms,
			"Routed":  stats.MessagesRouted,
			"Delayed": stats.MessagesDelayed,
			"Pending": stats.PendingDelayCount,
			"Held":    stats.MessagesHeld,
			"AllocMb": stats.AllocMemMb,
			"Time":    time.Now().Format(time.RFC822),
		}
	})
	log.Info(fmt.Sprintf("Store inspector at http://localhost:%d/inspect", config.DebugPort))

	// 6. Websocket gateway
	service := services.NewRoomService(orchestrator)
	gateway := transport.NewGateway(log, service, config.ConnectionBufferSize)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: gateway.Router()}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket gateway", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

func characterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("MASKING_CHARACTER must be a single character, got %q", str)
	}
	return r[0], nil
}

// messageMapper decodes message rows for the inspector; other prefixes
// fall back to the raw key view.
func messageMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)
	if row.Type != "MSG" {
		return row
	}
	message, err := repositories.DecodeMessage(val)
	if err != nil {
		return row
	}
	row.Detail = fmt.Sprintf("%s: %s", message.SenderName, message.Body)
	row.Flags = string(message.Status)
	if message.HeldForAI {
		row.Flags += " held"
	}
	if message.DelayedUntil != nil && message.ReleasedAt == nil {
		row.Flags += " delayed"
	}
	if message.BlockedByInterject {
		row.Flags += " interjected"
	}
	return row
}
