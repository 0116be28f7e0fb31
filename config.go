package amqpbridge

import (
	"os"
	"strconv"
	"time"
)

// Default wire parameters (spec.md §6): these apply unless overridden by
// the environment variables below.
const (
	DefaultMaxFrameSize = 131072
	DefaultIdleTimeout  = 10000 * time.Millisecond
)

// Config holds the two environment-overridable integers spec.md's
// configuration section names. Nothing else in the core is configurable.
type Config struct {
	MaxFrameSize uint32
	IdleTimeout  time.Duration
}

// LoadConfig reads AmqpMaxFrameSize and AmqpIdleTimeout from the
// environment, falling back to the spec defaults. A malformed value is
// ignored in favor of the default rather than failing construction — this
// mirrors the teacher's SenderOptions/ReceiverOptions pattern of permissive
// functional defaults instead of a validating config framework.
func LoadConfig() Config {
	cfg := Config{
		MaxFrameSize: DefaultMaxFrameSize,
		IdleTimeout:  DefaultIdleTimeout,
	}
	if v, ok := os.LookupEnv("AmqpMaxFrameSize"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.MaxFrameSize = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("AmqpIdleTimeout"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.IdleTimeout = time.Duration(n) * time.Millisecond
		}
	}
	return cfg
}
