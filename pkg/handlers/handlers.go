// Package handlers groups the HTTP handlers exposing the song-request core:
// queue and history operations, token management and the stream lifecycle
// notifications. Every endpoint selects its channel with the `channel` query
// parameter and answers with the ok/error envelope from pkg/outcome.

package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"SongRequest-Go/pkg/db"
	"SongRequest-Go/pkg/outcome"
	"SongRequest-Go/pkg/session"
)

var log = logrus.StandardLogger()

// TrackSearcher resolves a free-text query to track metadata using a
// provider access token. *spotify.Client satisfies it.
type TrackSearcher interface {
	SearchTrack(ctx context.Context, accessToken, query string) (*db.SongRequest, error)
}

// Application holds the dependencies shared by the HTTP handlers.
type Application struct {
	Sessions *session.Registry
	Player   TrackSearcher
}

// session resolves the channel query parameter to its session, writing the
// error response itself when that fails.
func (app *Application) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		respondError(w, outcome.New(outcome.TagInvalidRequest, "channel query parameter is required"))
		return nil, false
	}
	sess, err := app.Sessions.Get(r.Context(), channel)
	if err != nil {
		log.WithError(err).WithField("channel", channel).Error("create session")
		respondError(w, err)
		return nil, false
	}
	return sess, true
}
