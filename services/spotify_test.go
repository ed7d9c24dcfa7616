package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeSpotify serves a token endpoint and a two-page playlist. Returns a
// service pointed at it.
func fakeSpotify(t *testing.T) (*SpotifyService, *int) {
	t.Helper()

	tokenRequests := 0
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "fake-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	page := func(items []map[string]interface{}, next string) map[string]interface{} {
		return map[string]interface{}{"items": items, "next": next}
	}
	track := func(id, name, artist, album, releaseDate string) map[string]interface{} {
		return map[string]interface{}{
			"track": map[string]interface{}{
				"id":      id,
				"name":    name,
				"artists": []map[string]string{{"name": artist}},
				"album":   map[string]string{"name": album, "release_date": releaseDate},
			},
		}
	}

	mux.HandleFunc("/playlists/pl123/tracks", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("page") == "2" {
			json.NewEncoder(w).Encode(page([]map[string]interface{}{
				track("t3", "Three", "Artist C", "Album C", "1977"),
				track("", "", "", "", ""), // removed track, skipped
			}, ""))
			return
		}
		json.NewEncoder(w).Encode(page([]map[string]interface{}{
			track("t1", "One", "Artist A", "Album A", "1991-09-24"),
			track("t2", "Two", "Artist B", "Album B", "2004-06"),
		}, fmt.Sprintf("%s/playlists/pl123/tracks?page=2", server.URL)))
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	service := NewSpotifyService("id", "secret")
	service.apiBaseURL = server.URL
	service.tokenURL = server.URL + "/api/token"
	return service, &tokenRequests
}

func TestFetchPlaylistTracksFollowsPagination(t *testing.T) {
	service, _ := fakeSpotify(t)

	tracks, err := service.FetchPlaylistTracks(context.Background(), "pl123")
	if err != nil {
		t.Fatalf("FetchPlaylistTracks failed: %v", err)
	}

	if len(tracks) != 3 {
		t.Fatalf("Expected 3 tracks across both pages, got %d", len(tracks))
	}

	expected := []TrackInfo{
		{SpotifyTrackID: "t1", Title: "One", Artist: "Artist A", Album: "Album A", Year: 1991},
		{SpotifyTrackID: "t2", Title: "Two", Artist: "Artist B", Album: "Album B", Year: 2004},
		{SpotifyTrackID: "t3", Title: "Three", Artist: "Artist C", Album: "Album C", Year: 1977},
	}
	for i, want := range expected {
		if tracks[i] != want {
			t.Errorf("Track %d: got %+v, want %+v", i, tracks[i], want)
		}
	}
}

func TestFetchPlaylistTracksReusesToken(t *testing.T) {
	service, tokenRequests := fakeSpotify(t)

	for i := 0; i < 3; i++ {
		if _, err := service.FetchPlaylistTracks(context.Background(), "pl123"); err != nil {
			t.Fatalf("FetchPlaylistTracks failed: %v", err)
		}
	}

	if *tokenRequests != 1 {
		t.Errorf("Expected a single token request across calls, got %d", *tokenRequests)
	}
}

func TestFetchPlaylistTracksSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/api/token") {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "x", "expires_in": 3600})
			return
		}
		http.Error(w, `{"error":{"status":404,"message":"Not found."}}`, http.StatusNotFound)
	}))
	defer server.Close()

	service := NewSpotifyService("id", "secret")
	service.apiBaseURL = server.URL
	service.tokenURL = server.URL + "/api/token"

	if _, err := service.FetchPlaylistTracks(context.Background(), "missing"); err == nil {
		t.Error("Expected an error for a missing playlist")
	}
}

func TestReleaseYear(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1991-09-24", 1991},
		{"2004-06", 2004},
		{"1977", 1977},
		{"", 0},
		{"19", 0},
		{"abcd-01-01", 0},
	}
	for _, tt := range tests {
		if got := releaseYear(tt.in); got != tt.want {
			t.Errorf("releaseYear(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
