package hub

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"Parley/internal/auth"
	"Parley/internal/event"
	"Parley/internal/repo"
)

// Authenticator turns a raw bearer credential into an identity claim.
type Authenticator interface {
	Validate(credential string) (*auth.IdentityClaims, error)
}

// Gateway authenticates WebSocket upgrades and owns the connection
// lifecycle: register, presence online, greeting, pending replay, unread
// summary, receive loop, teardown.
type Gateway struct {
	hub        *Hub
	dispatcher *Dispatcher
	auth       Authenticator
	presence   PresenceStore
	messages   repo.MessageRepository
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func NewGateway(
	h *Hub,
	d *Dispatcher,
	authenticator Authenticator,
	pres PresenceStore,
	messages repo.MessageRepository,
	allowedOrigins []string,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		hub:        h,
		dispatcher: d,
		auth:       authenticator,
		presence:   pres,
		messages:   messages,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

// ServeWS handles one WebSocket upgrade request. Authentication failures
// are refused with 403 before the upgrade, so no socket state is ever
// created for them.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	credential := credentialFromRequest(r)

	claims, err := g.auth.Validate(credential)
	if err != nil {
		g.rejectHandshake(w, err)
		return
	}
	email := claims.Email

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := newClient(email, conn, g.hub, g.dispatcher, g.logger)
	if err := g.hub.Register(c); err != nil {
		g.logger.Error("register failed", zap.String("email", email), zap.Error(err))
		_ = conn.Close()
		return
	}

	go c.WritePump()

	now := time.Now()
	if err := g.presence.SetOnline(c.ctx, email, now); err != nil {
		g.logger.Warn("presence online failed", zap.String("email", email), zap.Error(err))
	}

	g.logger.Info("user connected", zap.String("email", email), zap.String("client_id", c.ID))

	c.Send(event.SourceConnection, event.ConnectionData{
		Message:   "connected",
		Email:     email,
		Timestamp: event.Timestamp(now),
	})
	g.replayPending(c.ctx, c)
	g.sendUnreadSummary(c.ctx, c)

	c.ReadPump()
	g.teardown(c)
}

func credentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	// fall back to scanning the raw query, in case the credential was
	// embedded without proper encoding
	for _, kv := range strings.Split(r.URL.RawQuery, "&") {
		if v, ok := strings.CutPrefix(kv, "token="); ok {
			if decoded, err := url.QueryUnescape(v); err == nil {
				return decoded
			}
			return v
		}
	}
	return ""
}

func (g *Gateway) rejectHandshake(w http.ResponseWriter, err error) {
	var message string
	switch {
	case errors.Is(err, auth.ErrNoCredential):
		message = "No token provided"
	case errors.Is(err, auth.ErrMissingIdentity):
		message = "Invalid user data in token"
	case errors.Is(err, auth.ErrInactiveIdentity):
		message = "User is inactive"
	default:
		message = "Invalid authentication credentials: " + err.Error()
	}

	g.logger.Warn("handshake rejected", zap.Error(err))
	http.Error(w, message, http.StatusForbidden)
}

// replayPending delivers every undelivered message for the identity in
// send order, then flips their delivered flags in one batch.
func (g *Gateway) replayPending(ctx context.Context, c *Client) {
	pending, err := g.messages.PendingFor(ctx, c.email)
	if err != nil {
		g.logger.Error("pending replay failed", zap.String("email", c.email), zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	ids := make([]primitive.ObjectID, 0, len(pending))
	for i := range pending {
		c.Send(event.SourceMessageSend, messageData(&pending[i], true))
		ids = append(ids, pending[i].ID)
	}

	if err := g.messages.MarkDeliveredMany(ctx, ids); err != nil {
		g.logger.Error("pending delivered flip failed", zap.String("email", c.email), zap.Error(err))
	}
}

func (g *Gateway) sendUnreadSummary(ctx context.Context, c *Client) {
	counts, err := g.messages.UnreadCounts(ctx, c.email)
	if err != nil {
		g.logger.Error("unread summary failed", zap.String("email", c.email), zap.Error(err))
		c.SendError(event.ErrServerError, "Failed to fetch unread message counts")
		return
	}

	summary := make([]event.UnreadEntry, 0, len(counts))
	for sender, count := range counts {
		summary = append(summary, event.UnreadEntry{Sender: sender, UnreadCount: count})
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Sender < summary[j].Sender })

	c.Send(event.SourceMessageUnread, summary)
}

// teardown runs after the read pump exits, for any reason.
func (g *Gateway) teardown(c *Client) {
	g.hub.Unregister(c.email, c.ID)
	c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	if err := g.presence.SetOffline(ctx, c.email, now); err != nil {
		g.logger.Warn("presence offline failed", zap.String("email", c.email), zap.Error(err))
	}

	lastSeen := event.Timestamp(now)
	frame, _ := event.Frame(event.SourceUserStatus, event.StatusData{
		Email:    c.email,
		Status:   "offline",
		LastSeen: &lastSeen,
	})
	if err := g.hub.Broadcast(ctx, frame); err != nil {
		g.logger.Warn("offline broadcast failed", zap.String("email", c.email), zap.Error(err))
	}

	g.logger.Info("user disconnected", zap.String("email", c.email), zap.String("client_id", c.ID))
}
