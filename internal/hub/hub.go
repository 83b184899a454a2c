package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"Parley/internal/bus"
	"Parley/internal/model"
)

// identityBucket holds every live local connection for one identity plus
// the bus listener that feeds them.
type identityBucket struct {
	clients map[string]*Client
	cancel  context.CancelFunc
}

// Hub is the per-process connection registry. It exclusively owns the
// identity -> {connection_id -> client} mapping and one bus listener per
// connected identity. The listener starts with the identity's first local
// connection and is cancelled, with its subscription closed, when the last
// local connection unregisters.
type Hub struct {
	channel string
	bus     bus.Bus
	logger  *zap.Logger

	mu         sync.RWMutex
	identities map[string]*identityBucket

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(b bus.Bus, channel string, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		channel:    channel,
		bus:        b,
		logger:     logger,
		identities: make(map[string]*identityBucket),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register adds a connection to its identity's bucket, starting the bus
// listener when this is the identity's first local connection.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	bkt, ok := h.identities[c.email]
	if !ok {
		listenCtx, listenCancel := context.WithCancel(h.ctx)

		// the listener covers the global channel and the identity topic
		sub, err := h.bus.Subscribe(listenCtx, h.channel, bus.IdentityTopic(h.channel, c.email))
		if err != nil {
			listenCancel()
			return err
		}

		bkt = &identityBucket{
			clients: make(map[string]*Client),
			cancel:  listenCancel,
		}
		h.identities[c.email] = bkt

		h.wg.Add(1)
		go h.listen(listenCtx, c.email, sub)
	}

	bkt.clients[c.ID] = c
	h.logger.Debug("client registered",
		zap.String("client_id", c.ID),
		zap.String("email", c.email),
		zap.Int("connections", len(bkt.clients)),
	)
	return nil
}

// Unregister removes a connection. When the identity's last connection
// goes, the bucket is dropped and its listener cancelled, so no stale
// subscription can deliver to closed sockets.
func (h *Hub) Unregister(email, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bkt, ok := h.identities[email]
	if !ok {
		return
	}

	delete(bkt.clients, connectionID)
	if len(bkt.clients) == 0 {
		bkt.cancel()
		delete(h.identities, email)
	}

	h.logger.Debug("client unregistered",
		zap.String("client_id", connectionID),
		zap.String("email", email),
	)
}

// listen forwards every bus payload verbatim to all local sockets for the
// identity. A dropped bus stream ends the listener and is logged; the
// connections stay open without cross-process fan-in.
func (h *Hub) listen(ctx context.Context, email string, sub bus.Subscription) {
	defer h.wg.Done()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.Messages():
			if !ok {
				h.logger.Warn("bus stream ended", zap.String("email", email))
				return
			}
			h.deliverLocal(email, frame)
		}
	}
}

func (h *Hub) deliverLocal(email string, frame []byte) {
	h.mu.RLock()
	bkt, ok := h.identities[email]
	if !ok {
		h.mu.RUnlock()
		return
	}
	clients := make([]*Client, 0, len(bkt.clients))
	for _, c := range bkt.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	// deliver without holding the lock
	for _, c := range clients {
		c.SendRaw(frame)
	}
}

// PublishTo fans a frame out to every process holding sockets for the
// identity, this one included.
func (h *Hub) PublishTo(ctx context.Context, email string, frame []byte) error {
	return h.bus.Publish(ctx, bus.IdentityTopic(h.channel, email), frame)
}

// Broadcast publishes a frame on the base channel.
func (h *Hub) Broadcast(ctx context.Context, frame []byte) error {
	return h.bus.Publish(ctx, h.channel, frame)
}

// Stats snapshots the registry for the monitor surface.
func (h *Hub) Stats() (model.ConnectionStats, []model.IdentityInfo) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := model.ConnectionStats{TotalIdentities: len(h.identities)}
	identities := make([]model.IdentityInfo, 0, len(h.identities))
	for email, bkt := range h.identities {
		stats.TotalConnections += len(bkt.clients)
		identities = append(identities, model.IdentityInfo{
			Email:       email,
			Connections: len(bkt.clients),
		})
	}
	return stats, identities
}

// Stop cancels every listener and closes every client connection.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for email, bkt := range h.identities {
		for _, c := range bkt.clients {
			c.Close()
		}
		delete(h.identities, email)
	}
	h.mu.Unlock()

	h.wg.Wait()
}
