package services

import (
	"testing"

	"trackline/models"
)

func timelineOf(years ...int) []models.TimelineEntry {
	entries := make([]models.TimelineEntry, 0, len(years))
	for i, year := range years {
		entries = append(entries, models.TimelineEntry{
			Title:    "song",
			Artist:   "artist",
			Year:     year,
			Position: i,
		})
	}
	return entries
}

func TestScoreGuessEmptyTimeline(t *testing.T) {
	song := models.CurrentSong{Title: "Hey", Artist: "Someone", Year: 1991}

	for _, position := range []string{PositionFirst, PositionLast} {
		result, err := ScoreGuess(song, position, nil, nil)
		if err != nil {
			t.Fatalf("ScoreGuess(%q) failed: %v", position, err)
		}
		if !result.Correct {
			t.Errorf("Expected %q on an empty timeline to be correct", position)
		}
		if result.Points != 1.0 {
			t.Errorf("Expected 1.0 points, got %v", result.Points)
		}
		if !result.Breakdown.TimelineGuess {
			t.Error("Expected timeline_guess to be set")
		}
	}
}

func TestScoreGuessPlacement(t *testing.T) {
	timeline := timelineOf(1975, 1990, 2004)

	tests := []struct {
		name     string
		year     int
		position string
		correct  bool
	}{
		{"first before oldest", 1960, PositionFirst, true},
		{"first equal to oldest", 1975, PositionFirst, true},
		{"first but newer", 1991, PositionFirst, false},
		{"last after newest", 2015, PositionLast, true},
		{"last equal to newest", 2004, PositionLast, true},
		{"last but older", 1980, PositionLast, false},
		{"between lower pair", 1980, "between:0", true},
		{"between upper pair", 1999, "between:1", true},
		{"between wrong slot", 1980, "between:1", false},
		{"between boundary year", 1990, "between:0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			song := models.CurrentSong{Year: tt.year}
			result, err := ScoreGuess(song, tt.position, timeline, nil)
			if err != nil {
				t.Fatalf("ScoreGuess failed: %v", err)
			}
			if result.Correct != tt.correct {
				t.Errorf("year %d at %q: got correct=%v, want %v", tt.year, tt.position, result.Correct, tt.correct)
			}
			if !tt.correct && result.Points != 0 {
				t.Errorf("Incorrect placement must earn 0 points, got %v", result.Points)
			}
		})
	}
}

func TestScoreGuessPlacementIgnoresInsertionOrder(t *testing.T) {
	// Entries arrive in insertion order, not year order. Placement must sort.
	timeline := timelineOf(2004, 1975, 1990)

	result, err := ScoreGuess(models.CurrentSong{Year: 1960}, PositionFirst, timeline, nil)
	if err != nil {
		t.Fatalf("ScoreGuess failed: %v", err)
	}
	if !result.Correct {
		t.Error("Expected 1960 to place first against {1975, 1990, 2004}")
	}
}

func TestScoreGuessInvalidPosition(t *testing.T) {
	timeline := timelineOf(1980, 1990)

	for _, position := range []string{"middle", "between:7", "between:-1", "between:x", ""} {
		if _, err := ScoreGuess(models.CurrentSong{Year: 1985}, position, timeline, nil); err == nil {
			t.Errorf("Expected error for position %q", position)
		}
	}
}

func TestScoreGuessDetailBonuses(t *testing.T) {
	song := models.CurrentSong{
		Title:  "Smells Like Teen Spirit",
		Artist: "Nirvana",
		Album:  "Nevermind",
		Year:   1991,
	}

	tests := []struct {
		name    string
		details *DetailedGuesses
		points  float64
	}{
		{"no details", nil, 1.0},
		{"all exact", &DetailedGuesses{Year: 1991, Artist: "Nirvana", Album: "Nevermind", Title: "Smells Like Teen Spirit"}, 3.0},
		{"year only", &DetailedGuesses{Year: 1991}, 1.5},
		{"year off by one", &DetailedGuesses{Year: 1992}, 1.0},
		{"artist case insensitive", &DetailedGuesses{Year: 1991, Artist: "nirvana"}, 2.0},
		{"artist one typo", &DetailedGuesses{Artist: "Nirvanna"}, 1.5},
		{"artist too far off", &DetailedGuesses{Artist: "Nirv"}, 1.0},
		{"album close enough", &DetailedGuesses{Album: "Nevermnd"}, 1.5},
		{"empty strings earn nothing", &DetailedGuesses{Artist: "", Album: "", Title: ""}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ScoreGuess(song, PositionFirst, nil, tt.details)
			if err != nil {
				t.Fatalf("ScoreGuess failed: %v", err)
			}
			if result.Points != tt.points {
				t.Errorf("Expected %v points, got %v (breakdown %+v)", tt.points, result.Points, result.Breakdown)
			}
		})
	}
}

func TestScoreGuessEmptyMetadataEarnsNoBonus(t *testing.T) {
	// A song with no album on record must not reward an empty album guess.
	song := models.CurrentSong{Title: "Untitled", Artist: "Unknown", Album: "", Year: 1991}

	result, err := ScoreGuess(song, PositionFirst, nil, &DetailedGuesses{Album: ""})
	if err != nil {
		t.Fatalf("ScoreGuess failed: %v", err)
	}
	if result.Points != 1.0 {
		t.Errorf("Expected only the placement point, got %v", result.Points)
	}
	if result.Breakdown.AlbumGuess {
		t.Error("Empty-vs-empty album must not count as a match")
	}
}

func TestScoreGuessNoBonusWithoutPlacement(t *testing.T) {
	song := models.CurrentSong{Title: "Thriller", Artist: "Michael Jackson", Year: 1982}
	timeline := timelineOf(1970)

	// Placement is wrong, so even perfect details earn nothing.
	details := &DetailedGuesses{Year: 1982, Artist: "Michael Jackson", Title: "Thriller"}
	result, err := ScoreGuess(song, PositionFirst, timeline, details)
	if err != nil {
		t.Fatalf("ScoreGuess failed: %v", err)
	}
	if result.Correct || result.Points != 0 {
		t.Errorf("Expected incorrect guess with 0 points, got correct=%v points=%v", result.Correct, result.Points)
	}
	if result.Breakdown.YearGuess || result.Breakdown.ArtistGuess || result.Breakdown.TitleGuess {
		t.Errorf("Expected empty breakdown, got %+v", result.Breakdown)
	}
}

func TestScoreGuessPointsMatchBreakdown(t *testing.T) {
	song := models.CurrentSong{Title: "Hotel California", Artist: "Eagles", Album: "Hotel California", Year: 1976}

	details := []*DetailedGuesses{
		nil,
		{Year: 1976},
		{Year: 1976, Artist: "Eagles"},
		{Year: 1975, Artist: "Eagels", Album: "Hotel California", Title: "Hotel California"},
		{Year: 1976, Artist: "Eagles", Album: "Hotel California", Title: "Hotel California"},
	}

	for _, d := range details {
		result, err := ScoreGuess(song, PositionLast, nil, d)
		if err != nil {
			t.Fatalf("ScoreGuess failed: %v", err)
		}

		expected := 0.0
		if result.Breakdown.TimelineGuess {
			expected += 1.0
		}
		for _, hit := range []bool{
			result.Breakdown.YearGuess,
			result.Breakdown.ArtistGuess,
			result.Breakdown.AlbumGuess,
			result.Breakdown.TitleGuess,
		} {
			if hit {
				expected += 0.5
			}
		}
		if result.Points != expected {
			t.Errorf("Points %v do not match breakdown %+v", result.Points, result.Breakdown)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Nirvana", "Nirvana", 1, 1},
		{"Nirvana", "nirvana", 1, 1},
		{"", "", 0, 0},
		{"Nirvana", "", 0, 0},
		{"Nirvana", "Nirvanna", 0.85, 0.99},
		{"Queen", "Kween", 0.5, 0.7},
		{"abba", "zzzz", 0, 0},
	}

	for _, tt := range tests {
		got := similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("similarity(%q, %q) = %v, want within [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
