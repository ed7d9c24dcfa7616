package services

import (
	"errors"
	"fmt"
	"log"
	"math/rand"

	"trackline/models"

	"gorm.io/gorm"
)

const defaultCandidateLimit = 50

// SelectionService picks the next round's song for a session: the ranked
// catalog filter, the decade diversity rule and the playlist-mode draw all
// live here. Every pick is recorded in the usage ledger and installed as the
// session's CurrentSong in the same transaction.
type SelectionService struct {
	db     *gorm.DB
	ledger *UsageLedger
}

func NewSelectionService(db *gorm.DB, ledger *UsageLedger) *SelectionService {
	return &SelectionService{db: db, ledger: ledger}
}

// AdvanceRound selects the next song for the session's current player,
// replacing any prior CurrentSong. Returns ErrSelectionExhausted when no
// candidate remains; the caller turns that into the terminal fail-safe.
// Every read and write runs on the supplied transaction handle.
func (s *SelectionService) AdvanceRound(tx *gorm.DB, session *models.Session) (*models.CurrentSong, error) {
	if session.CurrentPlayerID == nil {
		return nil, fmt.Errorf("session %d has no current player", session.ID)
	}

	var song *models.Song
	var err error
	if session.Mode == models.ModePlaylists {
		song, err = s.pickFromPlaylists(tx, session)
	} else {
		song, err = s.pickWithDecadeDiversity(tx, session, *session.CurrentPlayerID)
	}
	if err != nil {
		return nil, err
	}

	current := &models.CurrentSong{
		SessionID: session.ID,
		SongID:    song.ID,
		Title:     song.Title,
		Artist:    song.Artist,
		Year:      song.Year,
		Album:     song.Album,
	}

	// Mark used and swap the current song atomically so two round advances
	// can never both claim the same song.
	if err := s.ledger.MarkUsed(tx, session.ID, song.ID); err != nil {
		return nil, err
	}
	if err := tx.Where("session_id = ?", session.ID).Delete(&models.CurrentSong{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Create(current).Error; err != nil {
		return nil, err
	}

	return current, nil
}

// pickWithDecadeDiversity applies the package filter and the decade exclusion
// rule: all decades the player already has on their timeline are excluded
// until every available decade has been used, after which only the most
// recently used decade is excluded.
func (s *SelectionService) pickWithDecadeDiversity(tx *gorm.DB, session *models.Session, playerID uint) (*models.Song, error) {
	var pkg *models.SongPackage
	if session.PackageID != nil {
		pkg = &models.SongPackage{}
		if err := tx.First(pkg, *session.PackageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrPackageNotFound
			}
			return nil, err
		}
	}

	pool, err := s.FilteredCatalog(tx, pkg)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: package filter matches no songs", ErrSelectionExhausted)
	}

	var timeline []models.TimelineEntry
	if err := tx.Where("player_id = ?", playerID).Order("created_at DESC, id DESC").Find(&timeline).Error; err != nil {
		return nil, err
	}

	usedDecades := make(map[int]bool, len(timeline))
	for _, entry := range timeline {
		usedDecades[entry.Year/10*10] = true
	}
	lastUsedDecade := -1
	if len(timeline) > 0 {
		lastUsedDecade = timeline[0].Year / 10 * 10
	}

	availableDecades := make(map[int]bool, len(pool))
	for _, song := range pool {
		availableDecades[song.Decade()] = true
	}

	allDecadesUsed := true
	for decade := range availableDecades {
		if !usedDecades[decade] {
			allDecadesUsed = false
			break
		}
	}

	excluded := func(decade int) bool {
		if allDecadesUsed {
			// Exclude only the last decade so selection is never starved
			// while still forcing round-to-round variety.
			return decade == lastUsedDecade
		}
		return usedDecades[decade]
	}

	usedIDs, err := s.ledger.UsedSongIDs(tx, session.ID)
	if err != nil {
		return nil, err
	}
	usedSet := make(map[uint]bool, len(usedIDs))
	for _, id := range usedIDs {
		usedSet[id] = true
	}

	candidates := pool[:0:0]
	for _, song := range pool {
		if excluded(song.Decade()) || usedSet[song.ID] {
			continue
		}
		candidates = append(candidates, song)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: all candidates used or excluded", ErrSelectionExhausted)
	}

	picked := candidates[rand.Intn(len(candidates))]
	return &picked, nil
}

// pickFromPlaylists draws uniformly from a randomly chosen contributing
// playlist's cached songs. No decade rule in playlist mode. Playlists whose
// songs are all used up are skipped before giving up.
func (s *SelectionService) pickFromPlaylists(tx *gorm.DB, session *models.Session) (*models.Song, error) {
	var playlists []models.Playlist
	if err := tx.Where("session_id = ?", session.ID).Find(&playlists).Error; err != nil {
		return nil, err
	}
	if len(playlists) == 0 {
		return nil, fmt.Errorf("%w: no playlists attached to session", ErrSelectionExhausted)
	}

	usedIDs, err := s.ledger.UsedSongIDs(tx, session.ID)
	if err != nil {
		return nil, err
	}

	order := rand.Perm(len(playlists))
	for _, i := range order {
		query := tx.Where("session_id = ? AND playlist_id = ?", session.ID, playlists[i].ID)
		if len(usedIDs) > 0 {
			query = query.Where("id NOT IN ?", usedIDs)
		}

		var candidates []models.Song
		if err := query.Find(&candidates).Error; err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			log.Printf("Playlist %d in session %d is exhausted, trying next", playlists[i].ID, session.ID)
			continue
		}

		picked := candidates[rand.Intn(len(candidates))]
		return &picked, nil
	}

	return nil, fmt.Errorf("%w: every playlist in session %d is exhausted", ErrSelectionExhausted, session.ID)
}

// FilteredCatalog returns the ranked candidate pool for a package filter:
// catalog songs passing the predicate, best rank first, capped at the
// package's result limit. A nil package means the unfiltered catalog; a nil
// tx reads outside any transaction.
func (s *SelectionService) FilteredCatalog(tx *gorm.DB, pkg *models.SongPackage) ([]models.Song, error) {
	if tx == nil {
		tx = s.db
	}
	limit := defaultCandidateLimit
	query := tx.Where("session_id = 0")

	if pkg != nil {
		if pkg.Limit > 0 {
			limit = pkg.Limit
		}
		if pkg.Genre != "" {
			query = query.Where("genre = ?", pkg.Genre)
		}
		if pkg.Country != "" {
			query = query.Where("country = ?", pkg.Country)
		}
		if pkg.Artist != "" {
			query = query.Where("artist = ?", pkg.Artist)
		}
		if pkg.YearStart != 0 && pkg.YearEnd != 0 {
			query = query.Where("year BETWEEN ? AND ?", pkg.YearStart, pkg.YearEnd)
		}
	}

	var songs []models.Song
	if err := query.Order("rank ASC").Limit(limit).Find(&songs).Error; err != nil {
		return nil, err
	}
	return songs, nil
}
