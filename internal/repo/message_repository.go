package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"Parley/internal/db"
	"Parley/internal/model"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	ErrInvalidMessage     = errors.New("invalid message: message cannot be nil")
	ErrInvalidRoomID      = errors.New("invalid room ID: cannot be empty")
	ErrOperationTimeout   = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

// MessageRepository owns the messages collection. It exposes read/write
// primitives only; delivery semantics live in the dispatch layer.
type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) (string, error)
	FindByID(ctx context.Context, id string) (*model.Message, error)
	MarkRead(ctx context.Context, id, receiver string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, sender, receiver string, at time.Time) (int64, error)
	Edit(ctx context.Context, id, sender, newBody string, at time.Time) (*model.Message, error)
	Delete(ctx context.Context, id string) (int64, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkDeliveredMany(ctx context.Context, ids []primitive.ObjectID) error
	PendingFor(ctx context.Context, receiver string) ([]model.Message, error)
	UnreadCounts(ctx context.Context, receiver string) (map[string]int64, error)
	UnreadCountsFrom(ctx context.Context, receiver string, senders []string) (map[string]int64, error)
	Page(ctx context.Context, roomID, caller string, skip, limit int64) ([]model.Message, int64, error)
	History(ctx context.Context, roomID string, page int64) (*db.PaginatedResult[model.Message], error)
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) (string, error) {
	if msg == nil {
		return "", ErrInvalidMessage
	}
	if msg.RoomID == "" {
		return "", ErrInvalidRoomID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
			}

			m.logger.Debug("message inserted",
				zap.String("inserted_id", insertedID),
				zap.String("room_id", msg.RoomID),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("room_id", msg.RoomID),
	)

	return "", fmt.Errorf("insert message failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// Delivery / read state
// -----------------------------------------------------------------------------

func (m *messageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	msg, err := m.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return msg, nil
}

// MarkRead flips is_read for the receiver's unread copy of a message. It
// reports false when no unread message matched, so re-reading an already
// read message never regresses read_at.
func (m *messageRepository) MarkRead(ctx context.Context, id, receiver string, at time.Time) (bool, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("invalid message ID format: %w", err)
	}

	filter := db.NewFilter().
		Eq("_id", objectID).
		Eq("receiver", receiver).
		Eq("is_read", false).
		Build()

	result, err := m.mongoRepo.Update(ctx, filter, bson.M{"is_read": true, "read_at": at})
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (m *messageRepository) MarkAllRead(ctx context.Context, sender, receiver string, at time.Time) (int64, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("sender", sender).
		Eq("receiver", receiver).
		Eq("is_read", false).
		Build()

	result, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{"is_read": true, "read_at": at})
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return result.ModifiedCount, nil
}

// Edit rewrites the body of the sender's own message. Returns nil when no
// message matched the id+sender pair.
func (m *messageRepository) Edit(ctx context.Context, id, sender, newBody string, at time.Time) (*model.Message, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid message ID format: %w", err)
	}

	filter := db.NewFilter().Eq("_id", objectID).Eq("sender", sender).Build()
	result, err := m.mongoRepo.Update(ctx, filter, bson.M{
		"message":   newBody,
		"edited":    true,
		"edited_at": at,
	})
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	if result.ModifiedCount == 0 {
		return nil, nil
	}

	return m.FindByID(ctx, id)
}

func (m *messageRepository) Delete(ctx context.Context, id string) (int64, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := m.mongoRepo.DeleteByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete message: %w", err)
	}
	return result.DeletedCount, nil
}

func (m *messageRepository) MarkDelivered(ctx context.Context, id string) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := m.mongoRepo.UpdateByID(ctx, id, bson.M{"delivered": true}); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (m *messageRepository) MarkDeliveredMany(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().In("_id", ids).Build()
	if _, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{"delivered": true}); err != nil {
		return fmt.Errorf("mark delivered many: %w", err)
	}
	return nil
}

// PendingFor returns the receiver's undelivered messages, oldest first, so
// a reconnect replays them in send order.
func (m *messageRepository) PendingFor(ctx context.Context, receiver string) ([]model.Message, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("receiver", receiver).Eq("delivered", false).Build()
	msgs, err := m.mongoRepo.FindSorted(ctx, filter, "timestamp", false, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("pending messages: %w", err)
	}
	return msgs, nil
}

// -----------------------------------------------------------------------------
// Aggregations and paging
// -----------------------------------------------------------------------------

func (m *messageRepository) UnreadCounts(ctx context.Context, receiver string) (map[string]int64, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	match := db.NewFilter().Eq("receiver", receiver).Eq("is_read", false).Build()
	counts, err := m.mongoRepo.GroupCount(ctx, match, "sender")
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	return counts, nil
}

func (m *messageRepository) UnreadCountsFrom(ctx context.Context, receiver string, senders []string) (map[string]int64, error) {
	if len(senders) == 0 {
		return map[string]int64{}, nil
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	match := db.NewFilter().
		Eq("receiver", receiver).
		Eq("is_read", false).
		In("sender", senders).
		Build()
	counts, err := m.mongoRepo.GroupCount(ctx, match, "sender")
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	return counts, nil
}

// Page fetches one newest-first page of a room's history as seen by the
// caller, plus the total count for the same filter.
func (m *messageRepository) Page(ctx context.Context, roomID, caller string, skip, limit int64) ([]model.Message, int64, error) {
	if roomID == "" {
		return nil, 0, ErrInvalidRoomID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("room_id", roomID).
		Or(bson.M{"sender": caller}, bson.M{"receiver": caller}).
		Build()

	total, err := m.mongoRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	msgs, err := m.mongoRepo.FindSorted(ctx, filter, "timestamp", true, skip, limit)
	if err != nil {
		return nil, 0, m.handleReadError(err, roomID)
	}
	return msgs, total, nil
}

// History serves the REST room-history endpoint with 1-based paging.
func (m *messageRepository) History(ctx context.Context, roomID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if roomID == "" {
		return nil, ErrInvalidRoomID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("room_id", roomID).Build()
	result, err := m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     page,
		PageSize: 20,
		SortBy:   "timestamp",
		SortDesc: false,
	})
	if err != nil {
		return nil, m.handleReadError(err, roomID)
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

func (m *messageRepository) handleReadError(err error, roomID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("room_id", roomID))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("room_id", roomID))
		return err
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("room_id", roomID))
	return fmt.Errorf("filter messages failed: %w", err)
}
