package session

import (
	"context"
	"testing"

	"golang.org/x/oauth2"

	"SongRequest-Go/pkg/actor"
	"SongRequest-Go/pkg/db"
	"SongRequest-Go/pkg/token"
)

type nopRefresher struct{}

func (nopRefresher) Refresh(context.Context, string) (*token.Response, error) {
	return &token.Response{AccessToken: "fresh", ExpiresIn: 3600}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *db.DB) {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	rt := actor.New()
	t.Cleanup(func() {
		rt.Close()
		d.Close()
	})
	return NewRegistry(d, rt, nopRefresher{}, nopRefresher{}), d
}

// TestGetCreatesOnce verifies sessions are cached per channel and channels
// stay disjoint.
func TestGetCreatesOnce(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	a1, err := r.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := r.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Fatal("expected the same session instance for one channel")
	}
	b, err := r.Get(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if b == a1 {
		t.Fatal("channels must not share a session")
	}
	if got := r.Channels(); len(got) != 2 {
		t.Fatalf("expected 2 channels, got %v", got)
	}
}

// TestTokenRecordLoadedOnCreate verifies a persisted token record is visible
// through a freshly created session, as after a process restart.
func TestTokenRecordLoadedOnCreate(t *testing.T) {
	r, d := newTestRegistry(t)
	ctx := context.Background()

	tok := &oauth2.Token{AccessToken: "persisted", RefreshToken: "ref"}
	if err := d.SaveToken(ctx, "a", ProviderSpotify, tok); err != nil {
		t.Fatal(err)
	}
	sess, err := r.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	// The record is expired (zero Expiry) and the channel offline, so the
	// manager hands out the stale persisted token rather than refreshing.
	got, err := sess.Spotify.GetValidToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != "persisted" {
		t.Fatalf("expected persisted token, got %q", got)
	}
}

// TestSetLive flips both providers together.
func TestSetLive(t *testing.T) {
	r, _ := newTestRegistry(t)
	sess, err := r.Get(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	sess.SetLive(true)
	if !sess.Spotify.Live() || !sess.Twitch.Live() {
		t.Fatal("expected both providers live")
	}
	sess.SetLive(false)
	if sess.Spotify.Live() || sess.Twitch.Live() {
		t.Fatal("expected both providers offline")
	}
}
