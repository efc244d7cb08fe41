// This file implements the song-request queue endpoints: accepting and
// deleting requests, promoting them to history, and the history, duplicate
// and ranking queries derived from it.

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"SongRequest-Go/pkg/db"
	"SongRequest-Go/pkg/metrics"
	"SongRequest-Go/pkg/outcome"
)

// Requests dispatches on method: POST persists a request, GET lists the
// pending queue, DELETE removes a request by event ID.
func (app *Application) Requests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		app.persistRequest(w, r)
	case http.MethodGet:
		app.pendingRequests(w, r)
	case http.MethodDelete:
		app.deleteRequest(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		respondError(w, outcome.New(outcome.TagInvalidRequest, "method not allowed"))
	}
}

// persistRequest stores a viewer's request in the pending queue. The event
// ID comes from the platform redemption when present; requests arriving
// without one get a generated ID. Re-delivery of a known event ID is a
// silent success.
func (app *Application) persistRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	var body struct {
		EventID       string     `json:"event_id"`
		TrackID       string     `json:"track_id"`
		TrackName     string     `json:"track_name"`
		Artists       []string   `json:"artists"`
		Album         string     `json:"album"`
		AlbumCoverURL string     `json:"album_cover_url"`
		RequesterID   string     `json:"requester_id"`
		RequesterName string     `json:"requester_name"`
		RequestedAt   *time.Time `json:"requested_at"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, outcome.Wrap(outcome.TagInvalidRequest, "invalid request body", err))
		return
	}
	if body.TrackID == "" || body.RequesterID == "" {
		respondError(w, outcome.New(outcome.TagInvalidRequest, "track_id and requester_id are required"))
		return
	}
	if body.EventID == "" {
		body.EventID = uuid.NewString()
	}
	requestedAt := time.Now()
	if body.RequestedAt != nil {
		requestedAt = *body.RequestedAt
	}
	req := db.SongRequest{
		EventID:       body.EventID,
		TrackID:       body.TrackID,
		TrackName:     body.TrackName,
		Artists:       body.Artists,
		Album:         body.Album,
		AlbumCoverURL: body.AlbumCoverURL,
		RequesterID:   body.RequesterID,
		RequesterName: body.RequesterName,
		RequestedAt:   requestedAt,
	}
	inserted, err := sess.Queue.PersistRequest(r.Context(), req)
	if err != nil {
		log.WithError(err).WithField("channel", sess.ChannelID).Error("persist request")
		respondError(w, err)
		return
	}
	// Re-deliveries of a known event ID succeed but are not counted again.
	if inserted {
		metrics.RequestsPersisted.Inc()
	}
	respondOK(w, map[string]string{"event_id": req.EventID})
}

// pendingRequests lists the queued requests oldest first.
func (app *Application) pendingRequests(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	reqs, err := sess.Queue.Pending(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, reqs)
}

// deleteRequest removes a pending request. Deleting an unknown event ID
// still reports success.
func (app *Application) deleteRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		respondError(w, outcome.New(outcome.TagInvalidRequest, "event_id query parameter is required"))
		return
	}
	if err := sess.Queue.DeleteRequest(r.Context(), eventID); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, nil)
}

// MarkPlayed promotes a pending request into history. A second call for the
// same event fails with SongRequestNotFoundError because the pending row is
// gone.
func (app *Application) MarkPlayed(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	var body struct {
		EventID  string     `json:"event_id"`
		PlayedAt *time.Time `json:"played_at"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, outcome.Wrap(outcome.TagInvalidRequest, "invalid request body", err))
		return
	}
	if body.EventID == "" {
		respondError(w, outcome.New(outcome.TagInvalidRequest, "event_id is required"))
		return
	}
	playedAt := time.Now()
	if body.PlayedAt != nil {
		playedAt = *body.PlayedAt
	}
	if err := sess.Queue.WriteHistory(r.Context(), body.EventID, playedAt); err != nil {
		respondError(w, err)
		return
	}
	metrics.HistoryWrites.Inc()
	respondOK(w, nil)
}

// History returns a page of played requests, most recent first, together
// with the total count of entries matching the optional played-at range.
func (app *Application) History(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	var since, until *time.Time
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, outcome.New(outcome.TagInvalidRequest, "since must be RFC3339"))
			return
		}
		since = &t
	}
	if s := q.Get("until"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, outcome.New(outcome.TagInvalidRequest, "until must be RFC3339"))
			return
		}
		until = &t
	}
	page, err := sess.Queue.History(r.Context(), limit, offset, since, until)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, page)
}

// DuplicateCheck reports whether the same viewer requested the same track
// within the trailing window (default 30 minutes).
func (app *Application) DuplicateCheck(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	userID := q.Get("user_id")
	trackID := q.Get("track_id")
	if userID == "" || trackID == "" {
		respondError(w, outcome.New(outcome.TagInvalidRequest, "user_id and track_id query parameters are required"))
		return
	}
	minutes, _ := strconv.Atoi(q.Get("window_minutes"))
	if minutes <= 0 {
		minutes = 30
	}
	dup, err := sess.Queue.CheckDuplicate(r.Context(), userID, trackID, time.Duration(minutes)*time.Minute)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]bool{"duplicate": dup})
}

// TopTracks ranks tracks by play count, optionally scoped to one requester
// via the user_id query parameter.
func (app *Application) TopTracks(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var (
		res []db.TrackCount
		err error
	)
	if userID := q.Get("user_id"); userID != "" {
		res, err = sess.Queue.TopTracksByUser(r.Context(), userID, limit)
	} else {
		res, err = sess.Queue.TopTracks(r.Context(), limit)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, res)
}

// TopRequesters ranks viewers by how many of their requests were played.
func (app *Application) TopRequesters(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	res, err := sess.Queue.TopRequesters(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, res)
}

// ResolveTrack resolves a free-text query to track metadata using the
// channel's Spotify token, for callers that only have a song name.
func (app *Application) ResolveTrack(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, outcome.New(outcome.TagInvalidRequest, "q query parameter is required"))
		return
	}
	accessToken, err := sess.Spotify.GetValidToken(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	track, err := app.Player.SearchTrack(r.Context(), accessToken, query)
	if err != nil {
		log.WithError(err).WithField("channel", sess.ChannelID).Error("resolve track")
		respondError(w, err)
		return
	}
	respondOK(w, track)
}
