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

type roomRepository struct {
	mongoRepo *db.Repository[model.Room]
	logger    *zap.Logger
}

// RoomRepository owns the rooms collection. Rooms are created lazily on
// first contact between a pair; uniqueness is enforced by lookup before
// create, so a concurrent first contact can leave a duplicate room. That
// race is accepted and readers must tolerate it.
type RoomRepository interface {
	FindDirectRoom(ctx context.Context, a, b string) (*model.Room, error)
	Create(ctx context.Context, a, b string, now time.Time) (string, error)
	TouchLastMessage(ctx context.Context, roomID string, at time.Time) error
	DirectRoomsFor(ctx context.Context, email string) (map[string]string, error)
}

func NewRoomRepository(repo *db.Repository[model.Room], logger *zap.Logger) RoomRepository {
	return &roomRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// FindDirectRoom returns the room holding both identities, or nil when the
// pair has never talked.
func (r *roomRepository) FindDirectRoom(ctx context.Context, a, b string) (*model.Room, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().All("participants", []string{a, b}).Build()
	room, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	return room, nil
}

func (r *roomRepository) Create(ctx context.Context, a, b string, now time.Time) (string, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	room := model.Room{
		Participants:  []string{a, b},
		CreatedAt:     now,
		LastMessageAt: now,
	}

	result, err := r.mongoRepo.Create(ctx, room)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("create room: unexpected inserted ID type %T", result.InsertedID)
	}

	r.logger.Debug("room created",
		zap.String("room_id", oid.Hex()),
		zap.String("participant_a", a),
		zap.String("participant_b", b),
	)
	return oid.Hex(), nil
}

func (r *roomRepository) TouchLastMessage(ctx context.Context, roomID string, at time.Time) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := r.mongoRepo.UpdateByID(ctx, roomID, bson.M{"last_message_at": at}); err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	return nil
}

// DirectRoomsFor resolves a peer-to-room map across every two-participant
// room containing the identity.
func (r *roomRepository) DirectRoomsFor(ctx context.Context, email string) (map[string]string, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("participants", email).ArraySize("participants", 2).Build()
	rooms, err := r.mongoRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("rooms for %s: %w", email, err)
	}

	roomMap := make(map[string]string, len(rooms))
	for _, room := range rooms {
		for _, p := range room.Participants {
			if p != email {
				// first room wins when duplicates exist for a pair
				if _, seen := roomMap[p]; !seen {
					roomMap[p] = room.ID.Hex()
				}
			}
		}
	}
	return roomMap, nil
}

func (r *roomRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
