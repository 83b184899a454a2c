package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testClient(h *Hub, email string) *Client {
	return newClient(email, nil, h, nil, zap.NewNop())
}

func recvFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.egress:
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.egress:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitForSubscribers(t *testing.T, b *memBus, topic string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if b.subscriberCount(topic) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("topic %s has %d subscribers, want %d", topic, b.subscriberCount(topic), want)
}

func TestRegisterSubscribesOncePerIdentity(t *testing.T) {
	b := newMemBus()
	h := NewHub(b, "user_updates", zap.NewNop())

	c1 := testClient(h, "alice@x.com")
	c2 := testClient(h, "alice@x.com")

	if err := h.Register(c1); err != nil {
		t.Fatalf("register c1: %v", err)
	}
	if err := h.Register(c2); err != nil {
		t.Fatalf("register c2: %v", err)
	}

	// one listener per identity regardless of connection count, covering
	// both the global channel and the identity topic
	if got := b.subscriberCount("user_updates:alice@x.com"); got != 1 {
		t.Errorf("identity topic subscribers = %d, want 1", got)
	}
	if got := b.subscriberCount("user_updates"); got != 1 {
		t.Errorf("global channel subscribers = %d, want 1", got)
	}
}

func TestPublishToFansOutToAllLocalConnections(t *testing.T) {
	b := newMemBus()
	h := NewHub(b, "user_updates", zap.NewNop())

	c1 := testClient(h, "alice@x.com")
	c2 := testClient(h, "alice@x.com")
	other := testClient(h, "bob@x.com")
	for _, c := range []*Client{c1, c2, other} {
		if err := h.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	frame := []byte(`{"source":"message.send","data":{}}`)
	if err := h.PublishTo(context.Background(), "alice@x.com", frame); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := string(recvFrame(t, c1)); got != string(frame) {
		t.Errorf("c1 got %s", got)
	}
	if got := string(recvFrame(t, c2)); got != string(frame) {
		t.Errorf("c2 got %s", got)
	}
	assertNoFrame(t, other)
}

func TestBroadcastReachesEveryIdentity(t *testing.T) {
	b := newMemBus()
	h := NewHub(b, "user_updates", zap.NewNop())

	alice := testClient(h, "alice@x.com")
	bob := testClient(h, "bob@x.com")
	for _, c := range []*Client{alice, bob} {
		if err := h.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	frame := []byte(`{"source":"user.status","data":{"email":"carol@x.com","status":"offline"}}`)
	if err := h.Broadcast(context.Background(), frame); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	recvFrame(t, alice)
	recvFrame(t, bob)
}

func TestUnregisterLastConnectionStopsListener(t *testing.T) {
	b := newMemBus()
	h := NewHub(b, "user_updates", zap.NewNop())

	c1 := testClient(h, "alice@x.com")
	c2 := testClient(h, "alice@x.com")
	for _, c := range []*Client{c1, c2} {
		if err := h.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	// dropping one of two connections keeps the listener alive
	h.Unregister("alice@x.com", c1.ID)
	if got := b.subscriberCount("user_updates:alice@x.com"); got != 1 {
		t.Errorf("subscribers after partial unregister = %d, want 1", got)
	}

	if err := h.PublishTo(context.Background(), "alice@x.com", []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	recvFrame(t, c2)
	assertNoFrame(t, c1)

	// dropping the last connection tears the subscription down
	h.Unregister("alice@x.com", c2.ID)
	waitForSubscribers(t, b, "user_updates:alice@x.com", 0)
	waitForSubscribers(t, b, "user_updates", 0)

	if err := h.PublishTo(context.Background(), "alice@x.com", []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	assertNoFrame(t, c2)
}

func TestUnregisterUnknownConnectionIsHarmless(t *testing.T) {
	b := newMemBus()
	h := NewHub(b, "user_updates", zap.NewNop())

	h.Unregister("ghost@x.com", "no-such-id")
}

func TestStatsSnapshot(t *testing.T) {
	b := newMemBus()
	h := NewHub(b, "user_updates", zap.NewNop())

	for _, c := range []*Client{
		testClient(h, "alice@x.com"),
		testClient(h, "alice@x.com"),
		testClient(h, "bob@x.com"),
	} {
		if err := h.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	stats, identities := h.Stats()
	if stats.TotalIdentities != 2 {
		t.Errorf("TotalIdentities = %d, want 2", stats.TotalIdentities)
	}
	if stats.TotalConnections != 3 {
		t.Errorf("TotalConnections = %d, want 3", stats.TotalConnections)
	}

	byEmail := make(map[string]int, len(identities))
	for _, id := range identities {
		byEmail[id.Email] = id.Connections
	}
	if byEmail["alice@x.com"] != 2 || byEmail["bob@x.com"] != 1 {
		t.Errorf("identities = %v", byEmail)
	}
}
