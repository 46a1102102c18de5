package api

import "github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"

// Config controls feed API behavior.
type Config struct {
	MaxBodyBytes int64

	// DefaultPageSize applies when the request carries no limit.
	DefaultPageSize int

	// AutoMarkSeen records every served unit as seen for the requesting consumer.
	AutoMarkSeen bool
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:    64 << 10, // 64 KiB
		DefaultPageSize: 20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > feed.MaxPageSize {
		c.DefaultPageSize = def.DefaultPageSize
	}
	return c
}
