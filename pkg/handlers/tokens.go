// This file implements the token and stream-lifecycle endpoints. Tokens are
// submitted and read per provider; stream online/offline notifications flip
// the live flag that gates proactive token refresh.

package handlers

import (
	"io"
	"net/http"

	"SongRequest-Go/pkg/outcome"
	"SongRequest-Go/pkg/session"
	"SongRequest-Go/pkg/token"
	"SongRequest-Go/pkg/twitch"
)

// manager resolves the provider query parameter to the session's token
// manager for that provider.
func (app *Application) manager(w http.ResponseWriter, r *http.Request) (*token.Manager, bool) {
	sess, ok := app.session(w, r)
	if !ok {
		return nil, false
	}
	switch r.URL.Query().Get("provider") {
	case session.ProviderSpotify:
		return sess.Spotify, true
	case session.ProviderTwitch:
		return sess.Twitch, true
	default:
		respondError(w, outcome.New(outcome.TagInvalidRequest, "provider must be spotify or twitch"))
		return nil, false
	}
}

// Tokens dispatches on method: POST stores a provider token grant verbatim,
// GET returns a currently valid access token.
func (app *Application) Tokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		app.setTokens(w, r)
	case http.MethodGet:
		app.getValidToken(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondError(w, outcome.New(outcome.TagInvalidRequest, "method not allowed"))
	}
}

// setTokens passes the raw grant body to the token manager, which owns the
// parse and the refresh-token preservation rule.
func (app *Application) setTokens(w http.ResponseWriter, r *http.Request) {
	mgr, ok := app.manager(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, outcome.Wrap(outcome.TagInvalidRequest, "reading request body", err))
		return
	}
	if err := mgr.SetTokens(r.Context(), body); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, nil)
}

// getValidToken hands out an access token, refreshing transparently when the
// channel is live and the cached token expired.
func (app *Application) getValidToken(w http.ResponseWriter, r *http.Request) {
	mgr, ok := app.manager(w, r)
	if !ok {
		return
	}
	accessToken, err := mgr.GetValidToken(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"access_token": accessToken})
}

// StreamOnline handles a stream.online notification. The broadcaster in the
// payload selects the session; the channel query parameter is accepted as a
// fallback for manual use.
func (app *Application) StreamOnline(w http.ResponseWriter, r *http.Request) {
	app.streamEvent(w, r, true)
}

// StreamOffline handles a stream.offline notification.
func (app *Application) StreamOffline(w http.ResponseWriter, r *http.Request) {
	app.streamEvent(w, r, false)
}

func (app *Application) streamEvent(w http.ResponseWriter, r *http.Request, live bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondError(w, outcome.New(outcome.TagInvalidRequest, "method not allowed"))
		return
	}
	channel := r.URL.Query().Get("channel")
	if r.Body != nil && r.ContentLength != 0 {
		var ev twitch.StreamEvent
		if err := decodeJSON(r, &ev); err != nil {
			respondError(w, outcome.Wrap(outcome.TagInvalidRequest, "invalid stream event", err))
			return
		}
		if ev.BroadcasterUserID != "" {
			channel = ev.BroadcasterUserID
		}
	}
	if channel == "" {
		respondError(w, outcome.New(outcome.TagInvalidRequest, "channel is required"))
		return
	}
	sess, err := app.Sessions.Get(r.Context(), channel)
	if err != nil {
		respondError(w, err)
		return
	}
	sess.SetLive(live)
	log.WithField("channel", channel).WithField("live", live).Info("stream state changed")
	respondOK(w, nil)
}
