package main

import "time"

type Config struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,default=8080"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	QueueSize     int           `env:"QUEUE_SIZE,default=256"`
	BufferSize    int           `env:"BUFFER_SIZE,default=1024"`
	SinkTimeout   time.Duration `env:"SINK_TIMEOUT,default=5s"`
	LockTimeout   time.Duration `env:"LOCK_TIMEOUT,default=2s"`
	MaxBodyLength int           `env:"MAX_BODY_LENGTH,default=5000"`
	MaxDepth      int           `env:"MAX_DEPTH,default=10"`
	PageSizeCap   int           `env:"PAGE_SIZE_CAP,default=200"`
	AutoApprove   bool          `env:"AUTO_APPROVE,default=false"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=3s"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`

	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=12h"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	ModeratorID       string        `env:"MODERATOR_ID,default=moderator"`
	ModeratorName     string        `env:"MODERATOR_NAME,required=true"`
	ModeratorHash     string        `env:"MODERATOR_PASSWORD_HASH,required=true"`

	RateRPS   float64 `env:"RATE_RPS,default=5"`
	RateBurst int     `env:"RATE_BURST,default=10"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}
