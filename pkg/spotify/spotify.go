// Package spotify wraps the official Spotify client library for the two
// calls this application makes on behalf of a broadcaster: reading the
// currently playing track and resolving a search query to track metadata.
// Authentication is handled elsewhere; callers supply a bearer access token
// obtained from the channel's token manager on every call. The package also
// provides the Spotify token-endpoint refresher used by that manager.

package spotify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	libspotify "github.com/zmb3/spotify"
	"golang.org/x/oauth2"

	"SongRequest-Go/pkg/db"
	"SongRequest-Go/pkg/token"
)

// tokenURL is Spotify's OAuth token endpoint.
const tokenURL = "https://accounts.spotify.com/api/token"

// NewRefresher returns the token refresher for Spotify. Client credentials
// travel in the Authorization header as Spotify requires.
func NewRefresher(clientID, clientSecret string) *token.FormRefresher {
	return &token.FormRefresher{
		Client:       &http.Client{Timeout: 10 * time.Second},
		URL:          tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		BasicAuth:    true,
	}
}

// player is the subset of the spotify.Client used by this package. It allows
// the concrete client to be replaced in tests.
type player interface {
	PlayerCurrentlyPlaying() (*libspotify.CurrentlyPlaying, error)
	Search(query string, t libspotify.SearchType) (*libspotify.SearchResult, error)
}

// Client issues playback and search calls with a caller-supplied access
// token. The zero value is not usable; construct with NewClient.
type Client struct {
	// newPlayer builds the underlying client for one access token. Tests
	// substitute a stub here.
	newPlayer func(accessToken string) player
}

// NewClient returns a Client backed by the official library.
func NewClient() *Client {
	return &Client{newPlayer: func(accessToken string) player {
		c := libspotify.Authenticator{}.NewClient(&oauth2.Token{AccessToken: accessToken})
		return &c
	}}
}

// NowPlaying describes the track a broadcaster's player is currently on.
type NowPlaying struct {
	TrackID   string
	TrackName string
	Playing   bool
}

// CurrentlyPlaying reports the broadcaster's playback state. A nil result
// with nil error means nothing is playing. The wrapped library does not
// accept a context so cancellation is checked explicitly before the call.
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*NowPlaying, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, err := c.newPlayer(accessToken).PlayerCurrentlyPlaying()
	if err != nil {
		return nil, err
	}
	if cp == nil || cp.Item == nil {
		return nil, nil
	}
	return &NowPlaying{
		TrackID:   string(cp.Item.ID),
		TrackName: cp.Item.Name,
		Playing:   cp.Playing,
	}, nil
}

// SearchTrack resolves a free-text query to the best matching track and
// returns it in the shape the request store persists. A "no tracks found"
// error is returned when nothing matches.
func (c *Client) SearchTrack(ctx context.Context, accessToken, query string) (*db.SongRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := c.newPlayer(accessToken).Search(query, libspotify.SearchTypeTrack)
	if err != nil {
		return nil, err
	}
	if results.Tracks == nil || len(results.Tracks.Tracks) == 0 {
		return nil, fmt.Errorf("no tracks found")
	}
	t := results.Tracks.Tracks[0]
	req := &db.SongRequest{
		TrackID:   string(t.ID),
		TrackName: t.Name,
		Album:     t.Album.Name,
	}
	for _, a := range t.Artists {
		req.Artists = append(req.Artists, a.Name)
	}
	if len(t.Album.Images) > 0 {
		req.AlbumCoverURL = t.Album.Images[0].URL
	}
	return req, nil
}
