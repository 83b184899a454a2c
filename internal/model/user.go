package model

import "time"

// User is one row of the relational user directory. Chat only reads this
// table; account management lives in another service.
type User struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"userId" gorm:"column:user_id;type:TEXT NOT NULL;uniqueIndex"`
	Email     string    `json:"email" gorm:"type:TEXT NOT NULL;index"`
	Role      string    `json:"role" gorm:"type:TEXT NOT NULL"`
	IsActive  bool      `json:"isActive" gorm:"column:is_active;default:true"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (User) TableName() string { return "users" }
