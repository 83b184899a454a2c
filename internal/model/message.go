package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message represents a chat message in MongoDB. The body is stored under
// the "message" field for wire compatibility.
type Message struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RoomID    string             `json:"roomId" bson:"room_id"`
	Sender    string             `json:"sender" bson:"sender"`
	Receiver  string             `json:"receiver" bson:"receiver"`
	Body      string             `json:"message" bson:"message"`
	File      *Attachment        `json:"file,omitempty" bson:"file,omitempty"`
	Timestamp time.Time          `json:"timestamp" bson:"timestamp"`
	IsRead    bool               `json:"isRead" bson:"is_read"`
	ReadAt    *time.Time         `json:"readAt,omitempty" bson:"read_at,omitempty"`
	Delivered bool               `json:"delivered" bson:"delivered"`
	Edited    bool               `json:"edited,omitempty" bson:"edited,omitempty"`
	EditedAt  *time.Time         `json:"editedAt,omitempty" bson:"edited_at,omitempty"`
}

// Attachment is a file carried inline on a message. The raw bytes never
// leave the store; only the metadata is serialized to clients.
type Attachment struct {
	Filename    string `json:"filename" bson:"filename"`
	Size        int    `json:"size" bson:"size"`
	Data        []byte `json:"-" bson:"data"`
	ContentType string `json:"contentType" bson:"content_type"`
}
