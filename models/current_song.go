package models

import (
	"time"
)

// CurrentSong is the one active-round song for a session. It is replaced
// wholesale each round (delete then insert), never updated in place.
// No soft delete: rows must actually vanish so the session_id unique index
// accepts the replacement.
type CurrentSong struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID uint      `json:"session_id" gorm:"not null;uniqueIndex"`
	SongID    uint      `json:"song_id" gorm:"not null"`
	Title     string    `json:"title" gorm:"not null"`
	Artist    string    `json:"artist" gorm:"not null"`
	Year      int       `json:"year" gorm:"not null"`
	Album     string    `json:"album"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
