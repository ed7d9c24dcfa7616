package services

import (
	"context"
	"testing"

	"trackline/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory database with the full schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// An in-memory sqlite database exists per connection, so the pool must
	// stay at one; anything reading off a second handle would see an empty
	// schema.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.SongPackage{},
		&models.Session{},
		&models.Player{},
		&models.Song{},
		&models.Playlist{},
		&models.CurrentSong{},
		&models.UsedSong{},
		&models.TimelineEntry{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test schema: %v", err)
	}

	return db
}

// newTestGame wires a GameService against the test database. The redis
// snapshot cache is left out; every read rebuilds from the database.
func newTestGame(t *testing.T, db *gorm.DB) *GameService {
	t.Helper()

	ledger := NewUsageLedger(db)
	selection := NewSelectionService(db, ledger)
	spotify := NewSpotifyService("test-client", "test-secret")
	return NewGameService(db, nil, selection, ledger, spotify, 10)
}

// seedCatalogSong inserts one global catalog song and returns it.
func seedCatalogSong(t *testing.T, db *gorm.DB, title, artist string, year, rank int) models.Song {
	t.Helper()

	song := models.Song{
		Title:  title,
		Artist: artist,
		Year:   year,
		Rank:   rank,
	}
	if err := db.Create(&song).Error; err != nil {
		t.Fatalf("Failed to seed song %q: %v", title, err)
	}
	return song
}

// startedSession creates a packages-mode session with the given players and
// starts it. Returns the session and the players in join order.
func startedSession(t *testing.T, game *GameService, playerNames []string, maxSongs int) (*models.Session, []*models.Player) {
	t.Helper()

	session, err := game.CreateSession(&CreateSessionRequest{
		Name:     "test session",
		Mode:     models.ModePackages,
		MaxSongs: maxSongs,
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	players := make([]*models.Player, 0, len(playerNames))
	for _, name := range playerNames {
		player, err := game.JoinSession(session.ID, name)
		if err != nil {
			t.Fatalf("Failed to join player %q: %v", name, err)
		}
		players = append(players, player)
	}

	if _, err := game.StartGame(context.Background(), session.ID); err != nil {
		t.Fatalf("Failed to start game: %v", err)
	}

	return session, players
}
