package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Room represents a direct-message room in MongoDB. Participants holds
// exactly two identities; at most one room should exist per unordered pair.
// The lookup-before-create path can race under concurrent first contact and
// leave duplicates, which readers must tolerate.
type Room struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Participants  []string           `json:"participants" bson:"participants"`
	CreatedAt     time.Time          `json:"createdAt" bson:"created_at"`
	LastMessageAt time.Time          `json:"lastMessageAt" bson:"last_message_at"`
}
