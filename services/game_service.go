package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"trackline/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameService owns the per-session state machine: lifecycle, turn rotation,
// guess scoring and win detection. Every command is serialized per session by
// a dedicated mutex held across the whole read-mutate-persist sequence, so
// two concurrent guesses can never both count as the current player's, and
// two round advances can never claim the same song.
type GameService struct {
	db          *gorm.DB
	redis       *redis.Client
	selection   *SelectionService
	ledger      *UsageLedger
	spotify     *SpotifyService
	broadcaster Broadcaster

	defaultMaxSongs int

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// Broadcaster publishes session events to subscribed clients. The game
// service publishes while still holding the session's command lock, so the
// per-session frame order always matches commit order.
type Broadcaster interface {
	BroadcastToSession(sessionID uint, messageType string, payload interface{})
}

func NewGameService(db *gorm.DB, redisClient *redis.Client, selection *SelectionService, ledger *UsageLedger, spotify *SpotifyService, defaultMaxSongs int) *GameService {
	if defaultMaxSongs <= 0 {
		defaultMaxSongs = 10
	}
	return &GameService{
		db:              db,
		redis:           redisClient,
		selection:       selection,
		ledger:          ledger,
		spotify:         spotify,
		defaultMaxSongs: defaultMaxSongs,
		locks:           make(map[uint]*sync.Mutex),
	}
}

type CreateSessionRequest struct {
	Name     string `json:"name" binding:"required"`
	Mode     string `json:"mode"`
	MaxSongs int    `json:"max_songs"`
}

type JoinSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

// GameState is the full snapshot broadcast to a session's subscribers.
type GameState struct {
	SessionID       uint         `json:"session_id"`
	SessionName     string       `json:"session_name"`
	Status          string       `json:"status"`
	Mode            string       `json:"mode"`
	CurrentPlayerID uint         `json:"current_player_id"` // 0 when unset
	Players         []GamePlayer `json:"players"`
	CurrentSong     *RoundSong   `json:"current_song,omitempty"`
	CurrentRound    int          `json:"current_round"`
	MaxSongs        int          `json:"max_songs"`
}

type GamePlayer struct {
	ID          uint           `json:"id"`
	Name        string         `json:"name"`
	Score       float64        `json:"score"`
	HasPlaylist bool           `json:"has_playlist"`
	Timeline    []TimelineSong `json:"timeline"`
}

type TimelineSong struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Year   int    `json:"year"`
}

// RoundSong is the current song as clients may see it while the round is
// open. Year and album are intentionally omitted: they are what the active
// player is guessing.
type RoundSong struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// RevealedSong is the full current song, included in guess results once the
// round is over.
type RevealedSong struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Year   int    `json:"year"`
	Album  string `json:"album"`
}

// GuessOutcome bundles everything the transport needs to broadcast after a
// guess: the scoring result, the revealed song, the fresh snapshot, and the
// winner when the guess ended the game.
type GuessOutcome struct {
	PlayerID uint         `json:"player_id"`
	Result   GuessResult  `json:"result"`
	Song     RevealedSong `json:"song"`
	Winner   *GamePlayer  `json:"winner,omitempty"`
	State    *GameState   `json:"state"`
}

// SetBroadcaster attaches the transport used to fan out session events. Set
// once at wiring time, before commands flow.
func (s *GameService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *GameService) publish(sessionID uint, messageType string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastToSession(sessionID, messageType, payload)
}

// publishState rebuilds the snapshot, caches it and broadcasts it. Callers
// hold the session lock.
func (s *GameService) publishState(sessionID uint) {
	state, err := s.buildGameState(sessionID)
	if err != nil {
		log.Printf("Failed to rebuild snapshot for session %d: %v", sessionID, err)
		return
	}
	s.storeSnapshot(state)
	s.publish(sessionID, "gameStateUpdate", state)
}

// lockSession returns the mutex serializing commands for one session,
// creating it on first use.
func (s *GameService) lockSession(sessionID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[sessionID]; !ok {
		s.locks[sessionID] = &sync.Mutex{}
	}
	return s.locks[sessionID]
}

func (s *GameService) CreateSession(req *CreateSessionRequest) (*models.Session, error) {
	mode := req.Mode
	if mode == "" {
		mode = models.ModePackages
	}
	if mode != models.ModePackages && mode != models.ModePlaylists {
		return nil, fmt.Errorf("invalid session mode %q", req.Mode)
	}

	maxSongs := req.MaxSongs
	if maxSongs <= 0 {
		maxSongs = s.defaultMaxSongs
	}

	session := models.Session{
		Name:     req.Name,
		Status:   models.StatusWaiting,
		Mode:     mode,
		MaxSongs: maxSongs,
	}
	if err := s.db.Create(&session).Error; err != nil {
		return nil, err
	}

	s.refreshSnapshot(session.ID)
	return &session, nil
}

func (s *GameService) JoinSession(sessionID uint, playerName string) (*models.Player, error) {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	// Late joins are rejected by design: once a game is active the turn
	// rotation is fixed.
	if session.Status != models.StatusWaiting {
		return nil, ErrSessionNotJoinable
	}

	var existing models.Player
	if err := s.db.Where("session_id = ? AND name = ?", sessionID, playerName).First(&existing).Error; err == nil {
		return nil, errors.New("player name already taken")
	}

	player := models.Player{
		SessionID: sessionID,
		Name:      playerName,
		Score:     0,
		JoinedAt:  time.Now(),
	}
	if err := s.db.Create(&player).Error; err != nil {
		return nil, err
	}

	// Everyone already in the lobby sees the new player immediately.
	s.publishState(sessionID)
	return &player, nil
}

func (s *GameService) SelectPackage(sessionID, packageID uint) error {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.StatusWaiting {
		return ErrInvalidTransition
	}
	if session.Mode != models.ModePackages {
		return fmt.Errorf("%w: session is in %s mode", ErrInvalidTransition, session.Mode)
	}
	if session.PackageLocked {
		return fmt.Errorf("%w: package already locked", ErrInvalidTransition)
	}

	var pkg models.SongPackage
	if err := s.db.First(&pkg, packageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPackageNotFound
		}
		return err
	}

	if err := s.db.Model(session).Update("package_id", packageID).Error; err != nil {
		return err
	}

	s.publishState(sessionID)
	return nil
}

func (s *GameService) SelectPlaylist(sessionID, playerID uint, playlistID string) error {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.StatusWaiting {
		return ErrInvalidTransition
	}
	if session.Mode != models.ModePlaylists {
		return fmt.Errorf("%w: session is in %s mode", ErrInvalidTransition, session.Mode)
	}

	var player models.Player
	if err := s.db.Where("id = ? AND session_id = ?", playerID, sessionID).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPlayerNotFound
		}
		return err
	}

	playlist := models.Playlist{
		SessionID:         sessionID,
		PlayerID:          playerID,
		Name:              playlistID,
		SpotifyPlaylistID: playlistID,
	}
	if err := s.db.Create(&playlist).Error; err != nil {
		return err
	}

	s.publishState(sessionID)
	return nil
}

// StartGame transitions a waiting session to active: playlist mode first
// ingests every selected playlist into session-scoped songs, then the
// first-joined player goes on turn and the first round is advanced.
func (s *GameService) StartGame(ctx context.Context, sessionID uint) (*GameState, error) {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusWaiting {
		return nil, ErrInvalidTransition
	}

	var players []models.Player
	if err := s.db.Where("session_id = ?", sessionID).Order("joined_at ASC, id ASC").Find(&players).Error; err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, fmt.Errorf("%w: cannot start without players", ErrInvalidTransition)
	}

	if session.Mode == models.ModePlaylists {
		if err := s.cachePlaylistSongs(ctx, session); err != nil {
			// The session stays in waiting so the client can retry.
			return nil, fmt.Errorf("%w: %v", ErrExternalFetch, err)
		}
	}

	firstPlayer := players[0].ID
	updates := map[string]interface{}{
		"status":            models.StatusActive,
		"current_player_id": firstPlayer,
		"package_locked":    true,
	}
	if err := s.db.Model(session).Updates(updates).Error; err != nil {
		return nil, err
	}
	session.Status = models.StatusActive
	session.CurrentPlayerID = &firstPlayer
	session.PackageLocked = true

	if err := s.advanceRound(session); err != nil {
		if errors.Is(err, ErrSelectionExhausted) {
			log.Printf("Session %d has no startable songs, finishing: %v", sessionID, err)
			state, err := s.finishSession(sessionID)
			if err != nil {
				return nil, err
			}
			s.publish(sessionID, "gameStateUpdate", state)
			return state, nil
		}
		return nil, err
	}

	state, err := s.buildGameState(sessionID)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(state)
	s.publish(sessionID, "gameStateUpdate", state)
	return state, nil
}

// MakeGuess processes the active player's placement guess. The turn and the
// round always advance, correct or not; losing the turn is the only penalty.
func (s *GameService) MakeGuess(sessionID, playerID uint, position string, details *DetailedGuesses) (*GuessOutcome, error) {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusActive {
		return nil, ErrInvalidTransition
	}

	var player models.Player
	if err := s.db.Where("id = ? AND session_id = ?", playerID, sessionID).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}
	if session.CurrentPlayerID == nil || *session.CurrentPlayerID != playerID {
		return nil, ErrNotYourTurn
	}

	var current models.CurrentSong
	if err := s.db.Where("session_id = ?", sessionID).First(&current).Error; err != nil {
		return nil, fmt.Errorf("session %d has no current song: %w", sessionID, err)
	}

	var timeline []models.TimelineEntry
	if err := s.db.Where("player_id = ?", playerID).Order("position ASC").Find(&timeline).Error; err != nil {
		return nil, err
	}

	result, err := ScoreGuess(current, position, timeline, details)
	if err != nil {
		return nil, err
	}

	nextPlayerID, err := s.nextPlayer(sessionID, playerID)
	if err != nil {
		return nil, err
	}

	// Score, timeline entry and turn rotation commit together; a failure
	// here leaves the round untouched.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if result.Correct {
			entry := models.TimelineEntry{
				PlayerID: playerID,
				Title:    current.Title,
				Artist:   current.Artist,
				Year:     current.Year,
				Position: len(timeline),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Player{}).Where("id = ?", playerID).
				Update("score", gorm.Expr("score + ?", result.Points)).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Session{}).Where("id = ?", sessionID).
			Update("current_player_id", nextPlayerID).Error
	})
	if err != nil {
		return nil, err
	}
	session.CurrentPlayerID = &nextPlayerID

	outcome := &GuessOutcome{
		PlayerID: playerID,
		Result:   result,
		Song: RevealedSong{
			Title:  current.Title,
			Artist: current.Artist,
			Year:   current.Year,
			Album:  current.Album,
		},
	}

	if err := s.advanceRound(session); err != nil {
		if !errors.Is(err, ErrSelectionExhausted) {
			return nil, err
		}
		log.Printf("Session %d exhausted its candidate songs, finishing: %v", sessionID, err)
		if _, err := s.finishSession(sessionID); err != nil {
			return nil, err
		}
	}

	winner, err := s.checkWinner(sessionID, session.MaxSongs)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		if _, err := s.finishSession(sessionID); err != nil {
			return nil, err
		}
		outcome.Winner = winner
	}

	state, err := s.buildGameState(sessionID)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(state)
	outcome.State = state

	s.publish(sessionID, "gameStateUpdate", state)
	s.publish(sessionID, "guessResult", map[string]interface{}{
		"player_id":     outcome.PlayerID,
		"is_correct":    outcome.Result.Correct,
		"points_earned": outcome.Result.Points,
		"breakdown":     outcome.Result.Breakdown,
		"song_details":  outcome.Song,
	})
	if outcome.Winner != nil {
		s.publish(sessionID, "gameWinner", map[string]interface{}{
			"player_id":   outcome.Winner.ID,
			"player_name": outcome.Winner.Name,
		})
	}

	return outcome, nil
}

// TeardownSession deletes a session and everything it owns: players and
// their timelines, the current song, the usage ledger, attached playlists
// and session-scoped songs.
func (s *GameService) TeardownSession(sessionID uint) error {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.getSession(sessionID); err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var playerIDs []uint
		if err := tx.Model(&models.Player{}).Where("session_id = ?", sessionID).Pluck("id", &playerIDs).Error; err != nil {
			return err
		}
		if len(playerIDs) > 0 {
			if err := tx.Unscoped().Where("player_id IN ?", playerIDs).Delete(&models.TimelineEntry{}).Error; err != nil {
				return err
			}
		}
		for _, model := range []interface{}{
			&models.CurrentSong{}, &models.UsedSong{}, &models.Playlist{}, &models.Song{}, &models.Player{},
		} {
			if err := tx.Unscoped().Where("session_id = ?", sessionID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(&models.Session{}, sessionID).Error
	})
	if err != nil {
		return err
	}

	if s.redis != nil {
		if err := s.redis.Del(context.Background(), snapshotKey(sessionID)).Err(); err != nil {
			log.Printf("Failed to drop snapshot for session %d: %v", sessionID, err)
		}
	}

	s.mu.Lock()
	delete(s.locks, sessionID)
	s.mu.Unlock()

	return nil
}

func (s *GameService) ListSessions() ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.Preload("Players").Order("created_at DESC").Find(&sessions).Error
	return sessions, err
}

// GetGameState returns the session snapshot, preferring the redis cache and
// rebuilding from the database on a miss.
func (s *GameService) GetGameState(sessionID uint) (*GameState, error) {
	if s.redis != nil {
		data, err := s.redis.Get(context.Background(), snapshotKey(sessionID)).Result()
		if err == nil {
			var state GameState
			if err := json.Unmarshal([]byte(data), &state); err == nil {
				return &state, nil
			}
			log.Printf("Failed to unmarshal snapshot for session %d, rebuilding", sessionID)
		} else if err != redis.Nil {
			log.Printf("Redis error getting snapshot for session %d: %v", sessionID, err)
		}
	}

	state, err := s.buildGameState(sessionID)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(state)
	return state, nil
}

func (s *GameService) getSession(sessionID uint) (*models.Session, error) {
	var session models.Session
	if err := s.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// nextPlayer computes the turn rotation: a fixed cyclic permutation over the
// session's sorted player ids, independent of guess correctness.
func (s *GameService) nextPlayer(sessionID, currentPlayerID uint) (uint, error) {
	var ids []uint
	if err := s.db.Model(&models.Player{}).Where("session_id = ?", sessionID).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrPlayerNotFound
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i, id := range ids {
		if id == currentPlayerID {
			return ids[(i+1)%len(ids)], nil
		}
	}
	return ids[0], nil
}

func (s *GameService) advanceRound(session *models.Session) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		_, err := s.selection.AdvanceRound(tx, session)
		return err
	})
}

// checkWinner returns the highest-scoring player at or past the win
// threshold, or nil. Score accumulates in halves, so the comparison is >=,
// never equality.
func (s *GameService) checkWinner(sessionID uint, maxSongs int) (*GamePlayer, error) {
	var player models.Player
	err := s.db.Where("session_id = ? AND score >= ?", sessionID, float64(maxSongs)).
		Order("score DESC").First(&player).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &GamePlayer{ID: player.ID, Name: player.Name, Score: player.Score}, nil
}

func (s *GameService) finishSession(sessionID uint) (*GameState, error) {
	if err := s.db.Model(&models.Session{}).Where("id = ?", sessionID).
		Update("status", models.StatusFinished).Error; err != nil {
		return nil, err
	}
	state, err := s.buildGameState(sessionID)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(state)
	return state, nil
}

// cachePlaylistSongs ingests every attached playlist into session-scoped
// song rows. Re-running it is a no-op: inserts conflict-ignore on
// (session_id, spotify_track_id).
func (s *GameService) cachePlaylistSongs(ctx context.Context, session *models.Session) error {
	var playlists []models.Playlist
	if err := s.db.Where("session_id = ?", session.ID).Find(&playlists).Error; err != nil {
		return err
	}
	if len(playlists) == 0 {
		return errors.New("no playlists selected")
	}

	total := 0
	for _, playlist := range playlists {
		tracks, err := s.spotify.FetchPlaylistTracks(ctx, playlist.SpotifyPlaylistID)
		if err != nil {
			return fmt.Errorf("playlist %s: %w", playlist.SpotifyPlaylistID, err)
		}

		songs := make([]models.Song, 0, len(tracks))
		for _, track := range tracks {
			if track.Year == 0 {
				continue // a song without a release year cannot be placed
			}
			songs = append(songs, models.Song{
				Title:          track.Title,
				Artist:         track.Artist,
				Album:          track.Album,
				Year:           track.Year,
				SessionID:      session.ID,
				PlaylistID:     playlist.ID,
				SpotifyTrackID: track.SpotifyTrackID,
			})
		}
		if len(songs) == 0 {
			continue
		}

		if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&songs).Error; err != nil {
			return err
		}
		total += len(songs)
	}

	log.Printf("Cached %d playlist songs for session %d", total, session.ID)
	return nil
}

func (s *GameService) buildGameState(sessionID uint) (*GameState, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	var players []models.Player
	if err := s.db.Where("session_id = ?", sessionID).Order("joined_at ASC, id ASC").Find(&players).Error; err != nil {
		return nil, err
	}

	playlistOwners := make(map[uint]bool)
	if session.Mode == models.ModePlaylists {
		var ownerIDs []uint
		if err := s.db.Model(&models.Playlist{}).Where("session_id = ?", sessionID).Pluck("player_id", &ownerIDs).Error; err != nil {
			return nil, err
		}
		for _, id := range ownerIDs {
			playlistOwners[id] = true
		}
	}

	gamePlayers := make([]GamePlayer, 0, len(players))
	for _, player := range players {
		var entries []models.TimelineEntry
		if err := s.db.Where("player_id = ?", player.ID).Order("position ASC").Find(&entries).Error; err != nil {
			return nil, err
		}
		timeline := make([]TimelineSong, 0, len(entries))
		for _, entry := range entries {
			timeline = append(timeline, TimelineSong{Title: entry.Title, Artist: entry.Artist, Year: entry.Year})
		}
		gamePlayers = append(gamePlayers, GamePlayer{
			ID:          player.ID,
			Name:        player.Name,
			Score:       player.Score,
			HasPlaylist: playlistOwners[player.ID],
			Timeline:    timeline,
		})
	}

	state := &GameState{
		SessionID:   session.ID,
		SessionName: session.Name,
		Status:      session.Status,
		Mode:        session.Mode,
		Players:     gamePlayers,
		MaxSongs:    session.MaxSongs,
	}
	if session.CurrentPlayerID != nil {
		state.CurrentPlayerID = *session.CurrentPlayerID
	}

	var current models.CurrentSong
	if err := s.db.Where("session_id = ?", sessionID).First(&current).Error; err == nil {
		state.CurrentSong = &RoundSong{Title: current.Title, Artist: current.Artist}
	}

	used, err := s.ledger.Count(sessionID)
	if err != nil {
		return nil, err
	}
	if len(players) > 0 && used > 0 {
		state.CurrentRound = (int(used)-1)/len(players) + 1
	}

	return state, nil
}

func snapshotKey(sessionID uint) string {
	return fmt.Sprintf("session:%d", sessionID)
}

func (s *GameService) storeSnapshot(state *GameState) {
	if s.redis == nil || state == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("Failed to marshal snapshot for session %d: %v", state.SessionID, err)
		return
	}
	if err := s.redis.Set(context.Background(), snapshotKey(state.SessionID), data, 2*time.Hour).Err(); err != nil {
		log.Printf("Failed to store snapshot for session %d: %v", state.SessionID, err)
	}
}

func (s *GameService) refreshSnapshot(sessionID uint) {
	if s.redis == nil {
		return
	}
	state, err := s.buildGameState(sessionID)
	if err != nil {
		log.Printf("Failed to rebuild snapshot for session %d: %v", sessionID, err)
		return
	}
	s.storeSnapshot(state)
}
