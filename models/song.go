package models

import (
	"time"

	"gorm.io/gorm"
)

// Song is catalog reference data. Rows ingested from a playlist are scoped to
// a session via SessionID/PlaylistID and deduplicated per session by spotify
// track id, so repeated ingestion is a no-op.
type Song struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	Title          string         `json:"title" gorm:"not null"`
	Artist         string         `json:"artist" gorm:"not null"`
	Year           int            `json:"year" gorm:"not null;index"`
	Genre          string         `json:"genre" gorm:"index"`
	Country        string         `json:"country" gorm:"index"`
	Album          string         `json:"album"`
	Rank           int            `json:"rank" gorm:"not null;default:0"`
	SessionID      uint           `json:"session_id" gorm:"index;uniqueIndex:idx_songs_session_track,where:spotify_track_id <> ''"`
	PlaylistID     uint           `json:"playlist_id" gorm:"index"`
	SpotifyTrackID string         `json:"spotify_track_id" gorm:"uniqueIndex:idx_songs_session_track,where:spotify_track_id <> ''"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

// Decade returns the song's decade bucket (floor(year/10)*10).
func (s Song) Decade() int {
	return s.Year / 10 * 10
}
