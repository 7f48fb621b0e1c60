package main

import "time"

type Config struct {
	BufferSize           int           `env:"BUFFER_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DelayWindow          time.Duration `env:"DELAY_WINDOW,default=10s"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	TimelineLimit        int           `env:"TIMELINE_LIMIT,default=200"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	CensoredWordsPath    string        `env:"CENSORED_WORDS_PATH"`
	MaskingChar          string        `env:"MASKING_CHARACTER,default=*"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
}
