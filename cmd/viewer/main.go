package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"crosstalk/internal"
	"crosstalk/repositories"
)

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	DebugPort      int    `env:"DEBUG_PORT,default=8082"`
}

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in Read-Only mode
	// Note: BypassLockGuard allows opening if another process (the gateway) holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// 3. Start Debug Server Only
	// Empty stats provider since the orchestrator isn't running here
	emptyStats := func() map[string]any {
		return map[string]any{
			"Status": "Viewer Mode (Read-Only)",
			"Time":   time.Now().Format(time.RFC822),
		}
	}

	fmt.Printf("🌐 Viewer started at http://localhost:%d/inspect\n", config.DebugPort)

	internal.StartDebugServer(db, config.DebugPort, "/inspect", ViewerMapper, emptyStats)
}

// ViewerMapper decodes every known key prefix so the read-only view
// shows messages, participants and rooms without the routing runtime.
func ViewerMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)
	switch {
	case strings.HasPrefix(key, "msg:"):
		msg, err := repositories.DecodeMessage(val)
		if err != nil {
			return row
		}
		row.Detail = fmt.Sprintf("%s: %s", msg.SenderName, msg.Body)
		row.Flags = string(msg.Status)
		if msg.Emergency {
			row.Flags += " emergency"
		}
		if msg.HeldForAI {
			row.Flags += " held"
		}
		if msg.DelayedUntil != nil && msg.ReleasedAt == nil {
			row.Flags += " delayed"
		}
		if msg.BlockedByInterject {
			row.Flags += " interjected"
		}
		if msg.TaskState != "" {
			row.Flags += fmt.Sprintf(" task=%s", msg.TaskState)
		}
	case strings.HasPrefix(key, "participant:"):
		p, err := repositories.DecodeParticipant(val)
		if err != nil {
			return row
		}
		row.Detail = p.DisplayName
		row.Flags = string(p.Role)
		if p.PrimaryHuman {
			row.Flags += " primary"
		}
		if p.Online {
			row.Flags += " online"
		}
	case strings.HasPrefix(key, "room:"):
		room, err := repositories.DecodeRoom(val)
		if err != nil {
			return row
		}
		row.Detail = string(room.Code)
		if room.Paused {
			row.Flags = "paused"
		}
	}
	return row
}
