// Package busconfig holds the connection settings shared by every
// component that talks to the event bus (Redis Streams + KV).
package busconfig

import "time"

// Config is the shared bus connection block, embedded by each
// component's own Config struct (internal/config).
type Config struct {
	URL            string        `mapstructure:"url"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	StreamMaxLen   int64         `mapstructure:"stream_maxlen"` // default ~200_000
}

// Defaults returns the configuration used when no override is present.
func Defaults() Config {
	return Config{
		URL:          "redis://127.0.0.1:6379/0",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		StreamMaxLen: 200_000,
	}
}
