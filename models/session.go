package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusWaiting  = "waiting"
	StatusActive   = "active"
	StatusFinished = "finished"
)

const (
	ModePackages  = "packages"
	ModePlaylists = "playlists"
)

type Session struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	Name            string         `json:"name" gorm:"not null"`
	Status          string         `json:"status" gorm:"not null;default:'waiting'"` // waiting, active, finished
	Mode            string         `json:"mode" gorm:"not null;default:'packages'"`  // packages, playlists
	CurrentPlayerID *uint          `json:"current_player_id"`
	PackageID       *uint          `json:"package_id"`
	MaxSongs        int            `json:"max_songs" gorm:"not null;default:10"`
	PackageLocked   bool           `json:"package_locked" gorm:"not null;default:false"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Players   []Player     `json:"players,omitempty" gorm:"foreignKey:SessionID"`
	Package   *SongPackage `json:"package,omitempty"`
	UsedSongs []UsedSong   `json:"-" gorm:"foreignKey:SessionID"`
}
