package main

// Integration tests spin up the full HTTP server with an in-memory database
// and exercise a typical flow: token submission, stream going live, a viewer
// request, playback, and the history queries. These tests use httptest to
// avoid network dependencies.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SongRequest-Go/pkg/actor"
	"SongRequest-Go/pkg/db"
	"SongRequest-Go/pkg/handlers"
	"SongRequest-Go/pkg/outcome"
	"SongRequest-Go/pkg/session"
	"SongRequest-Go/pkg/token"
)

type stubRefresher struct{}

func (stubRefresher) Refresh(context.Context, string) (*token.Response, error) {
	return &token.Response{AccessToken: "refreshed", ExpiresIn: 3600}, nil
}

type stubSearcher struct{}

func (stubSearcher) SearchTrack(context.Context, string, string) (*db.SongRequest, error) {
	return &db.SongRequest{TrackID: "t1", TrackName: "Song"}, nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	rt := actor.New()
	t.Cleanup(func() {
		rt.Close()
		database.Close()
	})
	sessions := session.NewRegistry(database, rt, stubRefresher{}, stubRefresher{})
	app := &handlers.Application{Sessions: sessions, Player: stubSearcher{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/requests", app.Requests)
	mux.HandleFunc("/api/requests/played", app.MarkPlayed)
	mux.HandleFunc("/api/requests/duplicate", app.DuplicateCheck)
	mux.HandleFunc("/api/history", app.History)
	mux.HandleFunc("/api/history/top-tracks", app.TopTracks)
	mux.HandleFunc("/api/history/top-requesters", app.TopRequesters)
	mux.HandleFunc("/api/tracks/resolve", app.ResolveTrack)
	mux.HandleFunc("/api/tokens", app.Tokens)
	mux.HandleFunc("/api/stream/online", app.StreamOnline)
	mux.HandleFunc("/api/stream/offline", app.StreamOffline)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, url, body string) outcome.Envelope {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	var env outcome.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("invalid envelope %q: %v", b, err)
	}
	return env
}

// TestIntegrationRequestLifecycle exercises a full request flow end-to-end
// with a real database behind the HTTP surface.
func TestIntegrationRequestLifecycle(t *testing.T) {
	srv := newServer(t)
	// The duplicate check runs against the wall clock, so the request must
	// carry a recent timestamp to land inside the trailing window.
	base := time.Now().UTC().Truncate(time.Second)

	env := call(t, http.MethodPost, srv.URL+"/api/tokens?channel=c1&provider=spotify",
		`{"access_token":"tok1","expires_in":3600,"refresh_token":"ref1"}`)
	if env.Status != "ok" {
		t.Fatalf("set tokens: %+v", env)
	}
	env = call(t, http.MethodPost, srv.URL+"/api/stream/online", `{"broadcaster_user_id":"c1"}`)
	if env.Status != "ok" {
		t.Fatalf("stream online: %+v", env)
	}

	body := fmt.Sprintf(`{"event_id":"ev1","track_id":"t1","track_name":"Song","artists":["Artist"],"requester_id":"u1","requester_name":"Viewer","requested_at":%q}`,
		base.Format(time.RFC3339))
	env = call(t, http.MethodPost, srv.URL+"/api/requests?channel=c1", body)
	if env.Status != "ok" {
		t.Fatalf("persist: %+v", env)
	}

	env = call(t, http.MethodGet, srv.URL+"/api/requests/duplicate?channel=c1&user_id=u1&track_id=t1", "")
	if env.Value.(map[string]any)["duplicate"] != true {
		t.Fatalf("duplicate check: %+v", env)
	}

	played := fmt.Sprintf(`{"event_id":"ev1","played_at":%q}`, base.Add(time.Minute).Format(time.RFC3339))
	env = call(t, http.MethodPost, srv.URL+"/api/requests/played?channel=c1", played)
	if env.Status != "ok" {
		t.Fatalf("mark played: %+v", env)
	}

	env = call(t, http.MethodGet, srv.URL+"/api/history?channel=c1", "")
	page := env.Value.(map[string]any)
	if page["total_count"].(float64) != 1 {
		t.Fatalf("history: %+v", env)
	}
	env = call(t, http.MethodGet, srv.URL+"/api/history/top-tracks?channel=c1", "")
	items := env.Value.([]any)
	if len(items) != 1 || items[0].(map[string]any)["track_id"] != "t1" {
		t.Fatalf("top tracks: %+v", env)
	}

	env = call(t, http.MethodGet, srv.URL+"/api/tokens?channel=c1&provider=spotify", "")
	if env.Value.(map[string]any)["access_token"] != "tok1" {
		t.Fatalf("get token: %+v", env)
	}
}
