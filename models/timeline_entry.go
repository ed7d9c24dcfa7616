package models

import (
	"time"

	"gorm.io/gorm"
)

// TimelineEntry is one correctly placed song on a player's timeline. Position
// follows insertion order of correct guesses; sorting by year is a display
// concern.
type TimelineEntry struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	PlayerID  uint           `json:"player_id" gorm:"not null;index"`
	Title     string         `json:"title" gorm:"not null"`
	Artist    string         `json:"artist" gorm:"not null"`
	Year      int            `json:"year" gorm:"not null"`
	Position  int            `json:"position" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
