package realtime

import (
	"time"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/ids"
)

// NewSessionID returns a ULID used as websocket session id.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id, so ids sort by emission time in logs.
func NewEnvelopeID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
