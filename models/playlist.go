package models

import (
	"time"

	"gorm.io/gorm"
)

// Playlist attaches an external streaming playlist to a player within a
// session (playlists mode). Its tracks are ingested into session-scoped Song
// rows when the game starts.
type Playlist struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	SessionID         uint           `json:"session_id" gorm:"not null;index"`
	PlayerID          uint           `json:"player_id" gorm:"not null;index"`
	Name              string         `json:"name" gorm:"not null"`
	SpotifyPlaylistID string         `json:"spotify_playlist_id" gorm:"not null"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`
}
