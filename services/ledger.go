package services

import (
	"trackline/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageLedger is the append-only per-session record of presented songs. It
// backs the "never repeat a song within a session" rule in song selection.
type UsageLedger struct {
	db *gorm.DB
}

func NewUsageLedger(db *gorm.DB) *UsageLedger {
	return &UsageLedger{db: db}
}

// MarkUsed records a song as consumed for the session. Marking the same song
// twice is a no-op thanks to the composite unique index.
func (l *UsageLedger) MarkUsed(tx *gorm.DB, sessionID, songID uint) error {
	if tx == nil {
		tx = l.db
	}
	used := models.UsedSong{SessionID: sessionID, SongID: songID}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&used).Error
}

func (l *UsageLedger) IsUsed(sessionID, songID uint) (bool, error) {
	var count int64
	err := l.db.Model(&models.UsedSong{}).
		Where("session_id = ? AND song_id = ?", sessionID, songID).
		Count(&count).Error
	return count > 0, err
}

// UsedSongIDs returns every song id already presented in the session. Reads
// through tx when given so callers inside a transaction stay on one handle.
func (l *UsageLedger) UsedSongIDs(tx *gorm.DB, sessionID uint) ([]uint, error) {
	if tx == nil {
		tx = l.db
	}
	var ids []uint
	err := tx.Model(&models.UsedSong{}).
		Where("session_id = ?", sessionID).
		Pluck("song_id", &ids).Error
	return ids, err
}

func (l *UsageLedger) Count(sessionID uint) (int64, error) {
	var count int64
	err := l.db.Model(&models.UsedSong{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}
