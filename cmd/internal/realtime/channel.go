package realtime

import (
	"log/slog"
	"sync"
)

// Channel is an in-memory subscription set. Hub.Publish collects members
// across channels and fans out once per session.
//
// Join/Leave are safe under concurrent collection.
type Channel struct {
	log  *slog.Logger
	Name string

	mu      sync.RWMutex
	members map[string]*Client
}

// NewChannel constructs a channel.
func NewChannel(log *slog.Logger, name string) *Channel {
	return &Channel{
		log:     log,
		Name:    name,
		members: make(map[string]*Client),
	}
}

// Join subscribes a client.
func (c *Channel) Join(client *Client) {
	if c == nil || client == nil || client.SessionID == "" {
		return
	}

	c.mu.Lock()
	c.members[client.SessionID] = client
	c.mu.Unlock()

	c.log.Debug("channel.member.join", "channel", c.Name, "session_id", client.SessionID)
}

// Leave unsubscribes a session. It does not close the client: a session may
// stay subscribed to other channels.
func (c *Channel) Leave(sessionID string) {
	if c == nil || sessionID == "" {
		return
	}

	c.mu.Lock()
	delete(c.members, sessionID)
	c.mu.Unlock()

	c.log.Debug("channel.member.leave", "channel", c.Name, "session_id", sessionID)
}

// Len returns the number of subscribers.
func (c *Channel) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// collectInto adds every member to targets, keyed by session id, so a
// session subscribed to several channels appears once.
func (c *Channel) collectInto(targets map[string]*Client) {
	if c == nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, m := range c.members {
		if m != nil {
			targets[id] = m
		}
	}
}
