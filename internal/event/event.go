package event

import (
	"encoding/json"
	"time"
)

// Source tags exchanged over the socket. These strings are the wire
// compatibility surface and must not change.
const (
	SourceConnection    = "connection"
	SourceMessageSend   = "message.send"
	SourceMessageRead   = "message.read"
	SourceMessageEdit   = "message.edit"
	SourceMessageDelete = "message.delete"
	SourceMessageType   = "message.type"
	SourceMessageList   = "message.list"
	SourceMessageUnread = "message.unread"
	SourceUserStatus    = "user.status"
	SourceUserList      = "user.list"
	SourceReadList      = "read.list"
	SourcePing          = "ping"
	SourcePong          = "pong"
	SourceError         = "error"
)

// Error type tags carried inside error frames.
const (
	ErrInvalidRequest   = "invalid_request"
	ErrValidation       = "validation_error"
	ErrPermissionDenied = "permission_denied"
	ErrNotFound         = "not_found"
	ErrServerError      = "server_error"
	ErrFile             = "file_error"
)

// Envelope is one inbound JSON frame. The user.list paging controls ride
// at the top level of the frame rather than inside data.
type Envelope struct {
	Source       string          `json:"source"`
	Data         json.RawMessage `json:"data,omitempty"`
	Page         int             `json:"page,omitempty"`
	PerPage      int             `json:"per_page,omitempty"`
	Search       string          `json:"search,omitempty"`
	IsPagination *bool           `json:"is_pagination,omitempty"`
}

// ErrorBody is the error object inside an error frame.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Frame marshals an outbound {source, data} frame.
func Frame(source string, data any) ([]byte, error) {
	return json.Marshal(struct {
		Source string `json:"source"`
		Data   any    `json:"data"`
	}{source, data})
}

// ErrorFrame marshals an outbound error frame with a stable type tag.
func ErrorFrame(errType, message string) []byte {
	b, _ := json.Marshal(struct {
		Source string    `json:"source"`
		Error  ErrorBody `json:"error"`
	}{SourceError, ErrorBody{Type: errType, Message: message}})
	return b
}

// PongFrame is the reply to a ping frame.
func PongFrame() []byte {
	return []byte(`{"source":"pong"}`)
}

// Timestamp renders a wire timestamp.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
