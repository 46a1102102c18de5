package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/listing"
)

func testProperty(city string) listing.Property {
	return listing.Property{
		ID:          "01JNPV0000000000000000TEST",
		Title:       "Two bedroom flat",
		City:        city,
		MonthlyRent: 120_000,
		Bedrooms:    2,
		Status:      listing.StatusPublished,
		CreatedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHub_PublishFansOutOncePerSession(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	hub := NewHub(nil, m)

	both := NewClient("s-both", "", 4)
	city := NewClient("s-city", "", 4)
	other := NewClient("s-other", "", 4)

	hub.Join(ChannelAll, both)
	hub.Join("listings.douala", both)
	hub.Join("listings.douala", city)
	hub.Join("listings.buea", other)

	if got := hub.Publish(testProperty("Douala")); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
	if len(both.Send) != 1 || len(city.Send) != 1 || len(other.Send) != 0 {
		t.Fatalf("unexpected queue lengths: both=%d city=%d other=%d", len(both.Send), len(city.Send), len(other.Send))
	}

	env := <-city.Send
	if env.Type != TypeListingNew || env.V != Version || env.ID == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var p ListingNewPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.City != "Douala" || p.MonthlyRent != 120_000 {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestHub_PublishDropsOnBackpressure(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	slow := NewClient("s-slow", "", 1)
	hub.Join(ChannelAll, slow)

	if got := hub.Publish(testProperty("Buea")); got != 1 {
		t.Fatalf("first publish: expected 1, got %d", got)
	}
	if got := hub.Publish(testProperty("Buea")); got != 0 {
		t.Fatalf("full queue: expected 0, got %d", got)
	}

	slow.Close()
	<-slow.Send
	if got := hub.Publish(testProperty("Buea")); got != 0 {
		t.Fatalf("closed client: expected 0, got %d", got)
	}
}

func TestHub_LeavePrunesEmptyChannels(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	a := NewClient("a", "", 4)
	b := NewClient("b", "", 4)

	hub.Join(ChannelAll, a)
	hub.Join(ChannelAll, b)
	if got := hub.Subscribers(ChannelAll); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}

	hub.Leave(ChannelAll, "a")
	hub.Leave(ChannelAll, "b")
	hub.Leave(ChannelAll, "b")
	if got := hub.Subscribers(ChannelAll); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}

	hub.mu.RLock()
	n := len(hub.channels)
	hub.mu.RUnlock()
	if n != 0 {
		t.Fatalf("expected empty channels to be pruned, have %d", n)
	}
}
