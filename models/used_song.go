package models

import (
	"time"
)

// UsedSong records that a song was presented in a session. Append-only; the
// composite unique index guarantees a song appears at most once per session.
type UsedSong struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID uint      `json:"session_id" gorm:"not null;uniqueIndex:idx_used_songs_session_song"`
	SongID    uint      `json:"song_id" gorm:"not null;uniqueIndex:idx_used_songs_session_song"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
