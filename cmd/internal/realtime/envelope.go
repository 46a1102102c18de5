package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/listing"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the handshake and carries the session id (server -> client).
	TypeHelloAck = "hello.ack"

	// TypeChannelJoin subscribes to a channel (client -> server) and is echoed back.
	TypeChannelJoin = "channel.join"
	// TypeChannelLeave unsubscribes from a channel (client -> server) and is echoed back.
	TypeChannelLeave = "channel.leave"

	// TypeListingNew announces a newly published property (server -> subscribers).
	TypeListingNew = "listing.new"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	switch e.Type {
	case "":
		return errors.New("missing field: type")
	case TypeHello, TypeHelloAck, TypeChannelJoin, TypeChannelLeave, TypeListingNew, TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloAckPayload carries the server-assigned session id.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

// ChannelPayload names a channel for join/leave requests and their echoes.
type ChannelPayload struct {
	Channel string `json:"channel"`
}

// ListingNewPayload is the public view of a newly published property.
type ListingNewPayload struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	City        string    `json:"city"`
	MonthlyRent int64     `json:"monthly_rent"`
	Bedrooms    int       `json:"bedrooms"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrorPayload is sent with TypeError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func listingPayload(p listing.Property) ListingNewPayload {
	return ListingNewPayload{
		ID:          p.ID,
		Title:       p.Title,
		City:        p.City,
		MonthlyRent: p.MonthlyRent,
		Bedrooms:    p.Bedrooms,
		CreatedAt:   p.CreatedAt,
	}
}

// ---- Channels ----

// ChannelAll receives every newly published property.
const ChannelAll = "listings"

var citySlugRE = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// CityChannel returns the channel for properties in city, e.g. "listings.douala".
// It returns "" when city does not slug to a valid channel name.
func CityChannel(city string) string {
	slug := citySlug(city)
	if slug == "" {
		return ""
	}
	return ChannelAll + "." + slug
}

// ValidChannel reports whether name is ChannelAll or a city channel.
func ValidChannel(name string) bool {
	if name == ChannelAll {
		return true
	}
	slug, ok := strings.CutPrefix(name, ChannelAll+".")
	return ok && citySlugRE.MatchString(slug)
}

func citySlug(city string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(city)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if !citySlugRE.MatchString(slug) {
		return ""
	}
	return slug
}
