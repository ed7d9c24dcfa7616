package services

import (
	"testing"

	"trackline/models"
)

func TestLedgerMarkAndQuery(t *testing.T) {
	db := newTestDB(t)
	ledger := NewUsageLedger(db)

	if err := ledger.MarkUsed(nil, 1, 42); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}

	used, err := ledger.IsUsed(1, 42)
	if err != nil {
		t.Fatalf("IsUsed failed: %v", err)
	}
	if !used {
		t.Error("Expected song 42 to be used in session 1")
	}

	used, err = ledger.IsUsed(1, 43)
	if err != nil {
		t.Fatalf("IsUsed failed: %v", err)
	}
	if used {
		t.Error("Song 43 was never marked used")
	}
}

func TestLedgerMarkUsedIdempotent(t *testing.T) {
	db := newTestDB(t)
	ledger := NewUsageLedger(db)

	for i := 0; i < 3; i++ {
		if err := ledger.MarkUsed(nil, 1, 42); err != nil {
			t.Fatalf("MarkUsed attempt %d failed: %v", i, err)
		}
	}

	count, err := ledger.Count(1)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a single ledger row, got %d", count)
	}
}

func TestLedgerSessionIsolation(t *testing.T) {
	db := newTestDB(t)
	ledger := NewUsageLedger(db)

	if err := ledger.MarkUsed(nil, 1, 42); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}
	if err := ledger.MarkUsed(nil, 2, 42); err != nil {
		t.Fatalf("MarkUsed in second session failed: %v", err)
	}
	if err := ledger.MarkUsed(nil, 2, 43); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}

	ids, err := ledger.UsedSongIDs(nil, 1)
	if err != nil {
		t.Fatalf("UsedSongIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 42 {
		t.Errorf("Expected session 1 to have used only song 42, got %v", ids)
	}

	count, err := ledger.Count(2)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 used songs in session 2, got %d", count)
	}
}

func TestLedgerGrowsWithRounds(t *testing.T) {
	db := newTestDB(t)
	ledger := NewUsageLedger(db)

	for song := uint(1); song <= 5; song++ {
		if err := ledger.MarkUsed(nil, 7, song); err != nil {
			t.Fatalf("MarkUsed failed: %v", err)
		}
		count, err := ledger.Count(7)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != int64(song) {
			t.Errorf("After %d marks expected count %d, got %d", song, song, count)
		}
	}

	// The ledger only ever grows; nothing in the API removes rows.
	var total int64
	if err := db.Model(&models.UsedSong{}).Count(&total).Error; err != nil {
		t.Fatalf("Raw count failed: %v", err)
	}
	if total != 5 {
		t.Errorf("Expected 5 rows total, got %d", total)
	}
}
