package service

import (
	"context"

	"Parley/internal/db"
	"Parley/internal/model"
	"Parley/internal/repo"
)

type ChatService interface {
	RoomHistory(ctx context.Context, roomID string, page int64) (*db.PaginatedResult[model.Message], error)
	DirectRoom(ctx context.Context, a, b string) (*model.Room, error)
}

type chatService struct {
	messages repo.MessageRepository
	rooms    repo.RoomRepository
}

func NewChatService(messages repo.MessageRepository, rooms repo.RoomRepository) ChatService {
	return &chatService{
		messages: messages,
		rooms:    rooms,
	}
}

// RoomHistory pages one room's messages oldest first, 1-based pages.
func (s *chatService) RoomHistory(ctx context.Context, roomID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if page < 1 {
		page = 1
	}
	return s.messages.History(ctx, roomID, page)
}

// DirectRoom resolves the one-on-one room shared by the two identities,
// nil when they have never exchanged a message.
func (s *chatService) DirectRoom(ctx context.Context, a, b string) (*model.Room, error) {
	return s.rooms.FindDirectRoom(ctx, a, b)
}
