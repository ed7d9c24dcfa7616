package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TrackInfo is the engine-facing shape of an external playlist track.
type TrackInfo struct {
	SpotifyTrackID string
	Title          string
	Artist         string
	Album          string
	Year           int
}

// SpotifyService fetches playlist tracks with an app (client credentials)
// token. Playback and user-level auth are handled elsewhere.
type SpotifyService struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	apiBaseURL   string
	tokenURL     string

	mu          sync.RWMutex
	token       string
	tokenExpiry time.Time
}

type spotifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type spotifyPlaylistTracksResponse struct {
	Items []struct {
		Track struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Name        string `json:"name"`
				ReleaseDate string `json:"release_date"`
			} `json:"album"`
		} `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}

func NewSpotifyService(clientID, clientSecret string) *SpotifyService {
	return &SpotifyService{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiBaseURL: "https://api.spotify.com/v1",
		tokenURL:   "https://accounts.spotify.com/api/token",
	}
}

func (s *SpotifyService) getAccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		token := s.token
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, "POST", s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request failed: %s", string(body))
	}

	var tokenResp spotifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	s.token = tokenResp.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)

	return s.token, nil
}

// FetchPlaylistTracks returns every track of a playlist, following the
// paginated tracks endpoint until exhausted.
func (s *SpotifyService) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]TrackInfo, error) {
	token, err := s.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var tracks []TrackInfo
	next := fmt.Sprintf("%s/playlists/%s/tracks?limit=100", s.apiBaseURL, url.PathEscape(playlistID))

	for next != "" {
		req, err := http.NewRequestWithContext(ctx, "GET", next, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create playlist request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("playlist request failed: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("playlist request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var page spotifyPlaylistTracksResponse
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode playlist response: %w", err)
		}
		resp.Body.Close()

		for _, item := range page.Items {
			if item.Track.Name == "" {
				continue // removed or unavailable track
			}
			artist := ""
			if len(item.Track.Artists) > 0 {
				artist = item.Track.Artists[0].Name
			}
			tracks = append(tracks, TrackInfo{
				SpotifyTrackID: item.Track.ID,
				Title:          item.Track.Name,
				Artist:         artist,
				Album:          item.Track.Album.Name,
				Year:           releaseYear(item.Track.Album.ReleaseDate),
			})
		}

		next = page.Next
	}

	return tracks, nil
}

// releaseYear parses the year out of Spotify release dates, which come in
// "2006", "2006-01" or "2006-01-27" precision.
func releaseYear(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}
