package hub

import (
	"Parley/internal/event"
	"Parley/internal/model"
)

// Mapping from stored documents to outbound frame payloads.

func fileMeta(a *model.Attachment) *event.FileMeta {
	if a == nil {
		return nil
	}
	return &event.FileMeta{
		Filename:    a.Filename,
		Size:        a.Size,
		ContentType: a.ContentType,
	}
}

func messageData(m *model.Message, delivered bool) event.MessageData {
	return event.MessageData{
		MessageID: m.ID.Hex(),
		RoomID:    m.RoomID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Message:   m.Body,
		Timestamp: event.Timestamp(m.Timestamp),
		Delivered: delivered,
		File:      fileMeta(m.File),
	}
}

func historyEntry(m *model.Message) event.HistoryEntry {
	var editedAt *string
	if m.EditedAt != nil {
		s := event.Timestamp(*m.EditedAt)
		editedAt = &s
	}
	return event.HistoryEntry{
		MessageID: m.ID.Hex(),
		RoomID:    m.RoomID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Message:   m.Body,
		Timestamp: event.Timestamp(m.Timestamp),
		IsRead:    m.IsRead,
		Delivered: m.Delivered,
		Edited:    m.Edited,
		EditedAt:  editedAt,
		File:      fileMeta(m.File),
	}
}
