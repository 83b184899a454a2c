package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"Parley/internal/event"
	"Parley/internal/model"
	"Parley/internal/repo"
)

// Dispatcher routes inbound envelopes to their handlers. The handler table
// is a closed mapping built once at construction; unknown sources never
// reach a handler. Handlers are stateless beyond their arguments, and any
// panic is contained at the dispatch boundary so a bad frame cannot drop
// the connection.
type Dispatcher struct {
	hub      *Hub
	messages repo.MessageRepository
	rooms    repo.RoomRepository
	users    repo.UserRepository
	presence PresenceStore
	cache    ListCache
	logger   *zap.Logger
	now      func() time.Time

	handlers map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, s session, env *event.Envelope)

func NewDispatcher(
	h *Hub,
	messages repo.MessageRepository,
	rooms repo.RoomRepository,
	users repo.UserRepository,
	pres PresenceStore,
	listCache ListCache,
	logger *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		hub:      h,
		messages: messages,
		rooms:    rooms,
		users:    users,
		presence: pres,
		cache:    listCache,
		logger:   logger,
		now:      time.Now,
	}

	d.handlers = map[string]handlerFunc{
		event.SourceMessageSend:   d.messageSend,
		event.SourceMessageRead:   d.messageRead,
		event.SourceMessageEdit:   d.messageEdit,
		event.SourceMessageDelete: d.messageDelete,
		event.SourceMessageType:   d.messageType,
		event.SourceMessageList:   d.messageList,
		event.SourceUserStatus:    d.userStatus,
		event.SourceUserList:      d.userList,
		event.SourceReadList:      d.readList,
		event.SourcePing:          d.ping,
	}
	return d
}

// Dispatch handles one raw inbound frame for a connection.
func (d *Dispatcher) Dispatch(ctx context.Context, s session, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				zap.String("email", s.Email()),
				zap.Any("panic", r),
			)
			s.SendError(event.ErrServerError, "Internal server error")
		}
	}()

	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.SendError(event.ErrInvalidRequest, "Malformed message")
		return
	}
	if env.Source == "" {
		s.SendError(event.ErrInvalidRequest, "Missing message source")
		return
	}

	handler, ok := d.handlers[env.Source]
	if !ok {
		s.SendError(event.ErrInvalidRequest, "Unknown message source: "+env.Source)
		return
	}

	handler(ctx, s, &env)
}

// -----------------------------------------------------------------
// message.send
// -----------------------------------------------------------------

func (d *Dispatcher) messageSend(ctx context.Context, s session, env *event.Envelope) {
	var p event.SendPayload
	_ = json.Unmarshal(env.Data, &p)

	// An attachment may stand in for the message body.
	if p.Sender == "" || p.Receiver == "" || (p.Message == "" && p.File == "") {
		s.SendError(event.ErrValidation, "Missing required fields")
		return
	}
	if p.Sender != s.Email() {
		s.SendError(event.ErrPermissionDenied, "Cannot send messages as another user")
		return
	}

	now := d.now()

	roomID := p.RoomID
	if roomID == "" {
		room, err := d.rooms.FindDirectRoom(ctx, p.Sender, p.Receiver)
		if err != nil {
			d.logger.Error("room lookup failed", zap.Error(err))
			s.SendError(event.ErrServerError, "Internal server error")
			return
		}
		if room != nil {
			roomID = room.ID.Hex()
		} else {
			roomID, err = d.rooms.Create(ctx, p.Sender, p.Receiver, now)
			if err != nil {
				d.logger.Error("room create failed", zap.Error(err))
				s.SendError(event.ErrServerError, "Internal server error")
				return
			}
		}
	}

	msg := model.Message{
		RoomID:    roomID,
		Sender:    p.Sender,
		Receiver:  p.Receiver,
		Body:      p.Message,
		Timestamp: now,
	}

	if p.File != "" && p.Filename != "" {
		data, err := base64.StdEncoding.DecodeString(p.File)
		if err != nil {
			s.SendError(event.ErrFile, "Invalid file data")
			return
		}
		contentType := p.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		msg.File = &model.Attachment{
			Filename:    p.Filename,
			Size:        len(data),
			Data:        data,
			ContentType: contentType,
		}
	}

	id, err := d.messages.Insert(ctx, &msg)
	if err != nil {
		d.logger.Error("message insert failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
		return
	}

	data := messageData(&msg, false)
	data.MessageID = id
	frame, err := event.Frame(event.SourceMessageSend, data)
	if err != nil {
		s.SendError(event.ErrServerError, "Internal server error")
		return
	}

	// echo to the caller, then fan out to the receiver's topic
	s.SendRaw(frame)
	if err := d.hub.PublishTo(ctx, p.Receiver, frame); err != nil {
		d.logger.Error("fan-out failed", zap.String("receiver", p.Receiver), zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
		return
	}

	// best-effort status flips, not transactional with the fan-out
	if err := d.messages.MarkDelivered(ctx, id); err != nil {
		d.logger.Warn("mark delivered failed", zap.String("message_id", id), zap.Error(err))
	}
	if err := d.rooms.TouchLastMessage(ctx, roomID, d.now()); err != nil {
		d.logger.Warn("touch room failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// -----------------------------------------------------------------
// message.read / read.list
// -----------------------------------------------------------------

func (d *Dispatcher) messageRead(ctx context.Context, s session, env *event.Envelope) {
	var p event.ReadPayload
	_ = json.Unmarshal(env.Data, &p)

	if p.MessageID == "" {
		s.SendError(event.ErrValidation, "Missing message_id")
		return
	}

	now := d.now()
	modified, err := d.messages.MarkRead(ctx, p.MessageID, s.Email(), now)
	if err != nil {
		d.logger.Error("mark read failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
		return
	}
	if !modified {
		s.SendError(event.ErrNotFound, "Message not found or already read")
		return
	}

	frame, _ := event.Frame(event.SourceMessageRead, event.ReadAckData{
		MessageID: p.MessageID,
		Status:    "read",
		ReadAt:    event.Timestamp(now),
	})
	// ack goes to the reader's own topic; the sender is not notified
	if err := d.hub.PublishTo(ctx, s.Email(), frame); err != nil {
		d.logger.Error("read ack publish failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
	}
}

func (d *Dispatcher) readList(ctx context.Context, s session, env *event.Envelope) {
	var p event.ReadListPayload
	_ = json.Unmarshal(env.Data, &p)

	if p.Sender == "" {
		s.SendError(event.ErrValidation, "Missing sender")
		return
	}

	now := d.now()
	count, err := d.messages.MarkAllRead(ctx, p.Sender, s.Email(), now)
	if err != nil {
		d.logger.Error("bulk mark read failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
		return
	}
	if count == 0 {
		s.SendError(event.ErrNotFound, "No unread messages found from this sender")
		return
	}

	frame, _ := event.Frame(event.SourceReadList, event.ReadListData{
		Sender:    p.Sender,
		Status:    "read",
		ReadCount: count,
		ReadAt:    event.Timestamp(now),
	})
	if err := d.hub.PublishTo(ctx, s.Email(), frame); err != nil {
		d.logger.Error("read.list ack publish failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
	}
}

// -----------------------------------------------------------------
// message.edit / message.delete
// -----------------------------------------------------------------

func (d *Dispatcher) messageEdit(ctx context.Context, s session, env *event.Envelope) {
	var p event.EditPayload
	_ = json.Unmarshal(env.Data, &p)

	if p.MessageID == "" || p.NewMessage == "" {
		s.SendError(event.ErrValidation, "Missing required fields")
		return
	}

	updated, err := d.messages.Edit(ctx, p.MessageID, s.Email(), p.NewMessage, d.now())
	if err != nil {
		d.logger.Error("edit failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
		return
	}
	if updated == nil {
		s.SendError(event.ErrNotFound, "Message not found or not authorized to edit")
		return
	}

	editedAt := d.now()
	if updated.EditedAt != nil {
		editedAt = *updated.EditedAt
	}
	frame, _ := event.Frame(event.SourceMessageEdit, event.EditData{
		MessageID:  p.MessageID,
		RoomID:     updated.RoomID,
		Sender:     updated.Sender,
		Receiver:   updated.Receiver,
		NewMessage: p.NewMessage,
		EditedAt:   event.Timestamp(editedAt),
	})

	if err := d.publishToBoth(ctx, updated.Sender, updated.Receiver, frame); err != nil {
		s.SendError(event.ErrServerError, "Internal server error")
	}
}

func (d *Dispatcher) messageDelete(ctx context.Context, s session, env *event.Envelope) {
	var p event.DeletePayload
	_ = json.Unmarshal(env.Data, &p)

	if p.MessageID == "" {
		s.SendError(event.ErrValidation, "Missing message_id")
		return
	}

	msg, err := d.messages.FindByID(ctx, p.MessageID)
	if err != nil {
		d.logger.Error("delete lookup failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
		return
	}
	if msg == nil {
		s.SendError(event.ErrNotFound, "Message not found")
		return
	}
	if msg.Sender != s.Email() {
		s.SendError(event.ErrPermissionDenied, "Not authorized to delete this message")
		return
	}

	deleted, err := d.messages.Delete(ctx, p.MessageID)
	if err != nil {
		d.logger.Error("delete failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
		return
	}
	if deleted == 0 {
		s.SendError(event.ErrServerError, "Failed to delete message")
		return
	}

	frame, _ := event.Frame(event.SourceMessageDelete, event.DeleteData{
		MessageID: p.MessageID,
		RoomID:    msg.RoomID,
		DeletedBy: s.Email(),
		DeletedAt: event.Timestamp(d.now()),
	})

	if err := d.publishToBoth(ctx, msg.Sender, msg.Receiver, frame); err != nil {
		s.SendError(event.ErrServerError, "Internal server error")
	}
}

func (d *Dispatcher) publishToBoth(ctx context.Context, sender, receiver string, frame []byte) error {
	if err := d.hub.PublishTo(ctx, sender, frame); err != nil {
		d.logger.Error("publish failed", zap.String("email", sender), zap.Error(err))
		return err
	}
	if err := d.hub.PublishTo(ctx, receiver, frame); err != nil {
		d.logger.Error("publish failed", zap.String("email", receiver), zap.Error(err))
		return err
	}
	return nil
}

// -----------------------------------------------------------------
// message.type / user.status / ping
// -----------------------------------------------------------------

func (d *Dispatcher) messageType(ctx context.Context, s session, env *event.Envelope) {
	var p event.TypingPayload
	_ = json.Unmarshal(env.Data, &p)

	if p.RoomID == "" || p.Receiver == "" {
		s.SendError(event.ErrValidation, "Missing required fields")
		return
	}

	isTyping := true
	if p.IsTyping != nil {
		isTyping = *p.IsTyping
	}

	frame, _ := event.Frame(event.SourceMessageType, event.TypingData{
		RoomID:   p.RoomID,
		Sender:   s.Email(),
		IsTyping: isTyping,
	})
	// typing is transient: relayed to the receiver only, never persisted
	if err := d.hub.PublishTo(ctx, p.Receiver, frame); err != nil {
		d.logger.Error("typing relay failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
	}
}

func (d *Dispatcher) userStatus(ctx context.Context, s session, env *event.Envelope) {
	var p event.StatusQueryPayload
	_ = json.Unmarshal(env.Data, &p)

	if p.Email == "" {
		s.SendError(event.ErrValidation, "Missing email")
		return
	}

	rec, err := d.presence.Get(ctx, p.Email)
	if err != nil {
		d.logger.Error("presence read failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Internal server error")
		return
	}

	var lastSeen *string
	if rec.LastSeen != "" {
		lastSeen = &rec.LastSeen
	}
	s.Send(event.SourceUserStatus, event.StatusData{
		Email:    p.Email,
		Status:   rec.Status,
		LastSeen: lastSeen,
	})
}

func (d *Dispatcher) ping(_ context.Context, s session, _ *event.Envelope) {
	s.SendRaw(event.PongFrame())
}
