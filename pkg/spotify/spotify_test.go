package spotify

import (
	"context"
	"errors"
	"testing"

	libspotify "github.com/zmb3/spotify"
)

// stubPlayer implements the player interface for tests.
type stubPlayer struct {
	current  *libspotify.CurrentlyPlaying
	searched *libspotify.SearchResult
	err      error
	gotToken string
	gotQuery string
}

func (s *stubPlayer) PlayerCurrentlyPlaying() (*libspotify.CurrentlyPlaying, error) {
	return s.current, s.err
}

func (s *stubPlayer) Search(query string, _ libspotify.SearchType) (*libspotify.SearchResult, error) {
	s.gotQuery = query
	return s.searched, s.err
}

func clientWith(stub *stubPlayer) *Client {
	return &Client{newPlayer: func(accessToken string) player {
		stub.gotToken = accessToken
		return stub
	}}
}

func fullTrack(id, name, album string, artists ...string) libspotify.FullTrack {
	var t libspotify.FullTrack
	t.ID = libspotify.ID(id)
	t.Name = name
	t.Album.Name = album
	t.Album.Images = []libspotify.Image{{URL: "http://img/" + id}}
	for _, a := range artists {
		t.Artists = append(t.Artists, libspotify.SimpleArtist{Name: a})
	}
	return t
}

func TestCurrentlyPlaying(t *testing.T) {
	track := fullTrack("t1", "Song", "Album", "Artist")
	stub := &stubPlayer{current: &libspotify.CurrentlyPlaying{Item: &track, Playing: true}}
	c := clientWith(stub)

	np, err := c.CurrentlyPlaying(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if np == nil || np.TrackID != "t1" || np.TrackName != "Song" || !np.Playing {
		t.Fatalf("unexpected now playing: %+v", np)
	}
	if stub.gotToken != "tok" {
		t.Fatalf("access token not passed through, got %q", stub.gotToken)
	}
}

func TestCurrentlyPlayingNothing(t *testing.T) {
	c := clientWith(&stubPlayer{current: &libspotify.CurrentlyPlaying{}})
	np, err := c.CurrentlyPlaying(context.Background(), "tok")
	if err != nil || np != nil {
		t.Fatalf("expected nil result for idle player, got %+v %v", np, err)
	}
}

func TestCurrentlyPlayingHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := clientWith(&stubPlayer{})
	if _, err := c.CurrentlyPlaying(ctx, "tok"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestSearchTrack(t *testing.T) {
	track := fullTrack("t1", "Song", "Album", "A1", "A2")
	stub := &stubPlayer{searched: &libspotify.SearchResult{
		Tracks: &libspotify.FullTrackPage{Tracks: []libspotify.FullTrack{track}},
	}}
	c := clientWith(stub)

	req, err := c.SearchTrack(context.Background(), "tok", "song query")
	if err != nil {
		t.Fatal(err)
	}
	if req.TrackID != "t1" || req.TrackName != "Song" || req.Album != "Album" {
		t.Fatalf("unexpected track: %+v", req)
	}
	if len(req.Artists) != 2 || req.Artists[0] != "A1" {
		t.Fatalf("unexpected artists: %+v", req.Artists)
	}
	if req.AlbumCoverURL != "http://img/t1" {
		t.Fatalf("unexpected cover: %q", req.AlbumCoverURL)
	}
	if stub.gotQuery != "song query" {
		t.Fatalf("query not passed through: %q", stub.gotQuery)
	}
}

func TestSearchTrackEmpty(t *testing.T) {
	c := clientWith(&stubPlayer{searched: &libspotify.SearchResult{}})
	if _, err := c.SearchTrack(context.Background(), "tok", "q"); err == nil {
		t.Fatal("expected error for empty result")
	}
}

func TestSearchTrackError(t *testing.T) {
	c := clientWith(&stubPlayer{err: errors.New("boom")})
	if _, err := c.SearchTrack(context.Background(), "tok", "q"); err == nil {
		t.Fatal("expected error")
	}
}
