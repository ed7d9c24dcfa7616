package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"trackline/models"

	"github.com/agnivade/levenshtein"
)

const (
	basePlacementPoints = 1.0
	detailBonusPoints   = 0.5
	fuzzyMatchThreshold = 0.85
)

// Placement positions accepted from clients. "between:i" places the song
// between timeline indexes i and i+1 of the year-sorted timeline.
const (
	PositionFirst = "first"
	PositionLast  = "last"
)

type DetailedGuesses struct {
	Year   int    `json:"year"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Title  string `json:"title"`
}

type GuessBreakdown struct {
	TimelineGuess bool `json:"timeline_guess"`
	YearGuess     bool `json:"year_guess"`
	ArtistGuess   bool `json:"artist_guess"`
	AlbumGuess    bool `json:"album_guess"`
	TitleGuess    bool `json:"title_guess"`
}

type GuessResult struct {
	Correct   bool           `json:"is_correct"`
	Points    float64        `json:"points_earned"`
	Breakdown GuessBreakdown `json:"breakdown"`
}

// ScoreGuess evaluates a placement guess plus optional detail guesses against
// the current song and the player's timeline. It is deterministic and has no
// side effects; persisting the score delta is the caller's job.
func ScoreGuess(song models.CurrentSong, position string, timeline []models.TimelineEntry, details *DetailedGuesses) (GuessResult, error) {
	correct, err := placementCorrect(song.Year, position, timeline)
	if err != nil {
		return GuessResult{}, err
	}

	result := GuessResult{Correct: correct}
	if !correct {
		return result, nil
	}

	result.Points = basePlacementPoints
	result.Breakdown.TimelineGuess = true

	// Detail bonuses are only in play once the placement itself was right.
	if details != nil {
		if details.Year == song.Year {
			result.Points += detailBonusPoints
			result.Breakdown.YearGuess = true
		}
		if similarity(details.Artist, song.Artist) >= fuzzyMatchThreshold {
			result.Points += detailBonusPoints
			result.Breakdown.ArtistGuess = true
		}
		if similarity(details.Album, song.Album) >= fuzzyMatchThreshold {
			result.Points += detailBonusPoints
			result.Breakdown.AlbumGuess = true
		}
		if similarity(details.Title, song.Title) >= fuzzyMatchThreshold {
			result.Points += detailBonusPoints
			result.Breakdown.TitleGuess = true
		}
	}

	return result, nil
}

// placementCorrect checks the guessed bucket against the timeline sorted by
// year. Intervals are closed: a song whose year equals a neighbor's always
// satisfies adjacency.
func placementCorrect(year int, position string, timeline []models.TimelineEntry) (bool, error) {
	// Nothing to compare against yet, so every placement is right.
	if len(timeline) == 0 {
		return true, nil
	}

	sorted := make([]models.TimelineEntry, len(timeline))
	copy(sorted, timeline)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Year < sorted[j].Year
	})

	switch {
	case position == PositionFirst:
		return year <= sorted[0].Year, nil
	case position == PositionLast:
		return year >= sorted[len(sorted)-1].Year, nil
	case strings.HasPrefix(position, "between:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(position, "between:"))
		if err != nil || idx < 0 || idx >= len(sorted)-1 {
			return false, fmt.Errorf("invalid placement position %q", position)
		}
		return sorted[idx].Year <= year && year <= sorted[idx+1].Year, nil
	default:
		return false, fmt.Errorf("invalid placement position %q", position)
	}
}

// similarity returns a normalized edit-distance score in [0, 1],
// case-insensitive: (maxLen - distance) / maxLen. Two empty strings never
// match; missing metadata must not hand out a bonus for an empty guess.
func similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}
	if a == b {
		return 1
	}

	distance := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-distance) / float64(maxLen)
}
