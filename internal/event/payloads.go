package event

// Inbound payloads, one per dispatchable source.

// SendPayload is the data object of a message.send frame. File carries an
// optional base64-encoded attachment body.
type SendPayload struct {
	RoomID      string `json:"room_id"`
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Message     string `json:"message"`
	File        string `json:"file,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type ReadPayload struct {
	MessageID string `json:"message_id"`
}

type EditPayload struct {
	MessageID  string `json:"message_id"`
	NewMessage string `json:"new_message"`
}

type DeletePayload struct {
	MessageID string `json:"message_id"`
}

type TypingPayload struct {
	RoomID   string `json:"room_id"`
	Receiver string `json:"receiver"`
	IsTyping *bool  `json:"is_typing"`
}

type StatusQueryPayload struct {
	Email string `json:"email"`
}

// HistoryPayload pages through one room's history. Page is zero-based.
type HistoryPayload struct {
	RoomID   string `json:"room_id"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

type ReadListPayload struct {
	Sender string `json:"sender"`
}

// Outbound frame data objects.

type ConnectionData struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	Timestamp string `json:"timestamp"`
}

type FileMeta struct {
	Filename    string `json:"filename"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type"`
}

// MessageData is the data object of a fanned-out message.send frame.
type MessageData struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	Delivered bool      `json:"delivered"`
	File      *FileMeta `json:"file,omitempty"`
}

type ReadAckData struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	ReadAt    string `json:"read_at"`
}

type EditData struct {
	MessageID  string `json:"message_id"`
	RoomID     string `json:"room_id"`
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver"`
	NewMessage string `json:"new_message"`
	EditedAt   string `json:"edited_at"`
}

type DeleteData struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	DeletedBy string `json:"deleted_by"`
	DeletedAt string `json:"deleted_at"`
}

type TypingData struct {
	RoomID   string `json:"room_id"`
	Sender   string `json:"sender"`
	IsTyping bool   `json:"is_typing"`
}

type StatusData struct {
	Email    string  `json:"email"`
	Status   string  `json:"status"`
	LastSeen *string `json:"last_seen"`
}

type UnreadEntry struct {
	Sender      string `json:"sender"`
	UnreadCount int64  `json:"unread_count"`
}

type ReadListData struct {
	Sender    string `json:"sender"`
	Status    string `json:"status"`
	ReadCount int64  `json:"read_count"`
	ReadAt    string `json:"read_at"`
}

// HistoryEntry is one message in a message.list page.
type HistoryEntry struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
	Delivered bool      `json:"delivered"`
	Edited    bool      `json:"edited"`
	EditedAt  *string   `json:"edited_at"`
	File      *FileMeta `json:"file,omitempty"`
}

type HistoryData struct {
	Messages []HistoryEntry `json:"messages"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Total    int64          `json:"total"`
	HasMore  bool           `json:"has_more"`
}

// UserEntry is one directory row in a user.list reply.
type UserEntry struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	IsStatus    string  `json:"is_status"`
	LastSeen    *string `json:"last_seen"`
	UnreadCount int64   `json:"unread_count"`
	RoomID      *string `json:"room_id"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// UserListFrame is the full user.list reply. Pagination sits beside data,
// not inside it.
type UserListFrame struct {
	Source     string      `json:"source"`
	Data       []UserEntry `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}
