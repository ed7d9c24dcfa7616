package models

import (
	"time"

	"gorm.io/gorm"
)

type Player struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	SessionID uint           `json:"session_id" gorm:"not null;index"`
	Name      string         `json:"name" gorm:"not null"`
	Score     float64        `json:"score" gorm:"not null;default:0"` // accumulates in 0.5 increments
	JoinedAt  time.Time      `json:"joined_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Session  Session         `json:"session,omitempty"`
	Timeline []TimelineEntry `json:"timeline,omitempty" gorm:"foreignKey:PlayerID"`
}
