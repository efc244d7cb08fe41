// Package token implements the OAuth access-token cache shared by both
// upstream providers. A Manager is bound to one (channel, provider) pair and
// hands out a currently valid access token, refreshing it transparently and
// at most once per expiry. Refreshes are gated on the channel being live so
// an idle broadcaster never costs upstream calls, and concurrent callers of
// an expired token coalesce onto a single refresh round-trip.

package token

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"SongRequest-Go/pkg/outcome"
)

// Response is the provider token grant body the manager understands. The
// refresh_token field is optional: providers may omit it, in which case the
// previously stored refresh token remains in effect.
type Response struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Refresher performs the upstream refresh-token grant. Implementations
// return errors tagged TokenRefreshNetworkError or TokenRefreshParseError so
// callers can branch on the failure kind.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Response, error)
}

// Store persists token records across restarts. Load returns (nil, nil) when
// no record has ever been saved.
type Store interface {
	Save(ctx context.Context, tok *oauth2.Token) error
	Load(ctx context.Context) (*oauth2.Token, error)
}

// Manager caches one provider's token for one channel. All methods are safe
// for concurrent use.
type Manager struct {
	store     Store
	refresher Refresher

	group singleflight.Group

	mu   sync.Mutex
	tok  *oauth2.Token // nil until a token has been cached
	live bool

	// now is swapped out in tests to control expiry.
	now func() time.Time
}

// NewManager builds a Manager and loads any persisted token record before
// returning, so the first method call always observes durable state.
func NewManager(ctx context.Context, store Store, refresher Refresher) (*Manager, error) {
	tok, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Manager{store: store, refresher: refresher, tok: tok, now: time.Now}, nil
}

// SetTokens parses a provider token grant and stores the resulting record.
// A response that omits refresh_token keeps the previously stored refresh
// token; one that fails to parse or lacks required fields is rejected with a
// TokenParseError and leaves the cache untouched.
func (m *Manager) SetTokens(ctx context.Context, raw []byte) error {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return outcome.Wrap(outcome.TagTokenParse, "malformed token response", err)
	}
	if resp.AccessToken == "" || resp.ExpiresIn <= 0 {
		return outcome.New(outcome.TagTokenParse, "token response missing access_token or expires_in")
	}

	m.mu.Lock()
	refresh := resp.RefreshToken
	if refresh == "" && m.tok != nil {
		refresh = m.tok.RefreshToken
	}
	tok := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: refresh,
		Expiry:       m.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	m.mu.Unlock()

	// Persist first so the cache never holds a record that would be lost
	// on restart.
	if err := m.store.Save(ctx, tok); err != nil {
		return err
	}
	m.mu.Lock()
	m.tok = tok
	m.mu.Unlock()
	return nil
}

// OnStreamOnline marks the channel live. Idempotent.
func (m *Manager) OnStreamOnline() {
	m.mu.Lock()
	m.live = true
	m.mu.Unlock()
}

// OnStreamOffline marks the channel offline. Idempotent.
func (m *Manager) OnStreamOffline() {
	m.mu.Lock()
	m.live = false
	m.mu.Unlock()
}

// Live reports whether the channel is currently marked live.
func (m *Manager) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// GetValidToken returns an access token for upstream calls. An unexpired
// cached token is returned as is. An expired token is returned stale while
// the channel is offline, and refreshed while it is live; concurrent callers
// during a refresh all receive the outcome of the single round-trip. With no
// token cached at all the call fails: StreamOfflineNoTokenError offline,
// otherwise a refresh attempt that fails with NoRefreshTokenError.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	tok := m.tok
	live := m.live
	now := m.now()
	m.mu.Unlock()

	if tok == nil && !live {
		return "", outcome.New(outcome.TagStreamOfflineNoTok, "no token cached and stream is offline")
	}
	if tok != nil {
		if now.Before(tok.Expiry) {
			return tok.AccessToken, nil
		}
		if !live {
			// Nothing is consuming the token while offline, so a stale
			// token beats an upstream round-trip.
			return tok.AccessToken, nil
		}
	}
	return m.refresh(ctx)
}

// refresh performs (or joins) the single in-flight refresh. The singleflight
// slot clears when the call settles, so a failed refresh never wedges later
// attempts, and a failed refresh leaves the prior cached record untouched.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		m.mu.Lock()
		var refreshToken string
		if m.tok != nil {
			refreshToken = m.tok.RefreshToken
		}
		m.mu.Unlock()

		if refreshToken == "" {
			return nil, outcome.New(outcome.TagNoRefreshToken, "no refresh token cached")
		}
		resp, err := m.refresher.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}

		newRefresh := resp.RefreshToken
		if newRefresh == "" {
			newRefresh = refreshToken
		}
		tok := &oauth2.Token{
			AccessToken:  resp.AccessToken,
			RefreshToken: newRefresh,
			Expiry:       m.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		}
		// Persist before installing so a failed save leaves the prior
		// cached record in effect.
		if err := m.store.Save(ctx, tok); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.tok = tok
		m.mu.Unlock()
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
