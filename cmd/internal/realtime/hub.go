package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/listing"
)

// Hub owns the live channels. Channels are created on first join and pruned
// when their last subscriber leaves.
type Hub struct {
	log     *slog.Logger
	metrics *Metrics

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewHub constructs a Hub. m may be nil.
func NewHub(log *slog.Logger, m *Metrics) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		log:      log,
		metrics:  m,
		channels: make(map[string]*Channel),
	}
}

// Join subscribes client to the named channel, creating it if needed.
func (h *Hub) Join(name string, client *Client) *Channel {
	h.mu.Lock()
	c, ok := h.channels[name]
	if !ok {
		c = NewChannel(h.log, name)
		h.channels[name] = c
	}
	// Join under the hub lock so a concurrent Leave cannot prune c in between.
	c.Join(client)
	h.mu.Unlock()
	return c
}

// Leave unsubscribes sessionID from the named channel.
func (h *Hub) Leave(name, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.channels[name]
	if !ok {
		return
	}
	c.Leave(sessionID)
	if c.Len() == 0 {
		delete(h.channels, name)
	}
}

// Subscribers returns the subscriber count of the named channel.
func (h *Hub) Subscribers(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[name].Len()
}

// Publish announces p on ChannelAll and on its city channel. A session
// subscribed to both receives it once. It returns the number of sessions
// whose queue accepted the envelope.
func (h *Hub) Publish(p listing.Property) int {
	now := time.Now().UTC()
	payload, err := json.Marshal(listingPayload(p))
	if err != nil {
		h.log.Error("realtime.publish.encode.fail", "property_id", p.ID, "err", err)
		return 0
	}
	env := newEnvelope(TypeListingNew, payload, now)

	targets := make(map[string]*Client)
	h.mu.RLock()
	for _, name := range []string{ChannelAll, CityChannel(p.City)} {
		h.channels[name].collectInto(targets)
	}
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, m := range targets {
		if m.offer(env) {
			delivered++
		} else {
			dropped++
		}
	}

	h.metrics.published(delivered, dropped)
	if dropped > 0 {
		h.log.Warn("realtime.publish.dropped", "property_id", p.ID, "dropped", dropped)
	}
	return delivered
}
