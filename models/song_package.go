package models

import (
	"time"

	"gorm.io/gorm"
)

// SongPackage is a named, reusable catalog filter plus result cap. Empty
// string / zero year fields mean "no constraint".
type SongPackage struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"not null;index"`
	Name      string         `json:"name" gorm:"not null"`
	Genre     string         `json:"genre"`
	Country   string         `json:"country"`
	Artist    string         `json:"artist"`
	YearStart int            `json:"year_start"`
	YearEnd   int            `json:"year_end"`
	Limit     int            `json:"limit" gorm:"not null;default:50"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	User User `json:"user,omitempty"`
}
