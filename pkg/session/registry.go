// Package session ties the per-channel units together. Each channel owns a
// disjoint set of state: one song queue store and one token manager per
// upstream provider. The Registry creates these lazily on first use,
// addressed by channel ID, and loads persisted token records before a
// session is handed out so the first call on a fresh process observes
// durable state.

package session

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"golang.org/x/oauth2"

	"SongRequest-Go/pkg/actor"
	"SongRequest-Go/pkg/db"
	"SongRequest-Go/pkg/metrics"
	"SongRequest-Go/pkg/queue"
	"SongRequest-Go/pkg/token"
)

// Provider labels used to key persisted token records.
const (
	ProviderSpotify = "spotify"
	ProviderTwitch  = "twitch"
)

// Session bundles one channel's stateful units.
type Session struct {
	ChannelID string
	Queue     *queue.Store
	Spotify   *token.Manager
	Twitch    *token.Manager
}

// SetLive flips the live flag on both token managers. The flag gates
// whether expired tokens are proactively refreshed.
func (s *Session) SetLive(live bool) {
	if live {
		s.Spotify.OnStreamOnline()
		s.Twitch.OnStreamOnline()
		return
	}
	s.Spotify.OnStreamOffline()
	s.Twitch.OnStreamOffline()
}

// Registry creates and caches sessions by channel ID.
type Registry struct {
	db               *db.DB
	rt               *actor.Runtime
	spotifyRefresher token.Refresher
	twitchRefresher  token.Refresher

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns a Registry producing sessions backed by the given
// database and actor runtime. The refreshers are wrapped with metrics
// observation per provider.
func NewRegistry(database *db.DB, rt *actor.Runtime, spotifyRefresher, twitchRefresher token.Refresher) *Registry {
	return &Registry{
		db:               database,
		rt:               rt,
		spotifyRefresher: metrics.ObserveRefresher(ProviderSpotify, spotifyRefresher),
		twitchRefresher:  metrics.ObserveRefresher(ProviderTwitch, twitchRefresher),
		sessions:         make(map[string]*Session),
	}
}

// Get returns the session for channelID, creating it on first use.
func (r *Registry) Get(ctx context.Context, channelID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[channelID]; ok {
		return s, nil
	}

	spotifyMgr, err := token.NewManager(ctx, &tokenStore{db: r.db, channelID: channelID, provider: ProviderSpotify}, r.spotifyRefresher)
	if err != nil {
		return nil, err
	}
	twitchMgr, err := token.NewManager(ctx, &tokenStore{db: r.db, channelID: channelID, provider: ProviderTwitch}, r.twitchRefresher)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ChannelID: channelID,
		Queue:     queue.New(channelID, r.db, r.rt),
		Spotify:   spotifyMgr,
		Twitch:    twitchMgr,
	}
	r.sessions[channelID] = s
	return s, nil
}

// Channels lists the channel IDs with an instantiated session, in no
// particular order. The playback poller iterates this set.
func (r *Registry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// tokenStore adapts the db token table to the token.Store contract, which
// signals an empty cache as (nil, nil) rather than sql.ErrNoRows.
type tokenStore struct {
	db        *db.DB
	channelID string
	provider  string
}

func (s *tokenStore) Save(ctx context.Context, tok *oauth2.Token) error {
	return s.db.SaveToken(ctx, s.channelID, s.provider, tok)
}

func (s *tokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	tok, err := s.db.GetToken(ctx, s.channelID, s.provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tok, err
}
