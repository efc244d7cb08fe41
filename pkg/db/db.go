// Package db provides the persistence layer used by the application. It wraps
// a SQLite database and exposes helper methods for storing OAuth tokens,
// pending song requests and the played-request history. Callers are expected
// to open a single DB instance using New and reuse it for all operations.
// All rows are scoped by a channel ID so several broadcasters can share one
// database file while their state stays disjoint.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"

	"SongRequest-Go/pkg/outcome"
)

// DB wraps a sql.DB connection and exposes helper methods for the
// application's persistence layer.
type DB struct {
	*sql.DB
}

// New opens the SQLite database located at path. If the file does not exist
// it is created along with the required schema. The returned DB value wraps
// the sql.DB connection for use by the rest of the application.
func New(path string) (*DB, error) {
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Every pooled connection to :memory: opens a fresh empty database, so
	// the pool must be pinned to a single connection.
	if path == ":memory:" {
		d.SetMaxOpenConns(1)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tokens (channel_id TEXT, provider TEXT, token TEXT NOT NULL, PRIMARY KEY(channel_id, provider))`,
		`CREATE TABLE IF NOT EXISTS pending_requests (
			channel_id TEXT, event_id TEXT,
			track_id TEXT, track_name TEXT, artists TEXT, album TEXT, album_cover_url TEXT,
			requester_id TEXT, requester_name TEXT, requested_at TIMESTAMP,
			PRIMARY KEY(channel_id, event_id))`,
		`CREATE TABLE IF NOT EXISTS request_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT, event_id TEXT,
			track_id TEXT, track_name TEXT, artists TEXT, album TEXT, album_cover_url TEXT,
			requester_id TEXT, requester_name TEXT, requested_at TIMESTAMP, played_at TIMESTAMP)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_history_channel_event ON request_history(channel_id, event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_history_channel_played ON request_history(channel_id, played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_requester ON pending_requests(channel_id, requester_id, track_id)`,
	}
	// Execute the schema creation statements. Errors here likely mean the
	// database file is not writable.
	for _, s := range stmts {
		if _, err := d.Exec(s); err != nil {
			d.Close()
			return nil, fmt.Errorf("init db: %w", err)
		}
	}
	return &DB{d}, nil
}

// SaveToken persists the OAuth token for the given channel and provider. If a
// token already exists it is replaced.
func (db *DB) SaveToken(ctx context.Context, channelID, provider string, token *oauth2.Token) error {
	// Serialize the oauth2 token to JSON before storing it.
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO tokens(channel_id, provider, token) VALUES(?, ?, ?)
		ON CONFLICT(channel_id, provider) DO UPDATE SET token=excluded.token`, channelID, provider, string(b))
	return err
}

// GetToken retrieves the OAuth token stored for the channel and provider and
// unmarshals it from JSON. sql.ErrNoRows is returned when no token has ever
// been saved, which callers treat as an empty cache rather than a failure.
func (db *DB) GetToken(ctx context.Context, channelID, provider string) (*oauth2.Token, error) {
	var data string
	if err := db.QueryRowContext(ctx, `SELECT token FROM tokens WHERE channel_id=? AND provider=?`, channelID, provider).Scan(&data); err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// SongRequest describes a track a viewer asked for. EventID is the
// platform-assigned redemption identifier and uniquely keys the request
// within a channel.
type SongRequest struct {
	EventID       string    `json:"event_id"`
	TrackID       string    `json:"track_id"`
	TrackName     string    `json:"track_name"`
	Artists       []string  `json:"artists"`
	Album         string    `json:"album"`
	AlbumCoverURL string    `json:"album_cover_url"`
	RequesterID   string    `json:"requester_id"`
	RequesterName string    `json:"requester_name"`
	RequestedAt   time.Time `json:"requested_at"`
}

// HistoryEntry is a song request that has been played. Entries are immutable
// once written.
type HistoryEntry struct {
	SongRequest
	PlayedAt time.Time `json:"played_at"`
}

// InsertPending stores a new pending request. Re-inserting an event ID that
// is already present is a silent no-op so redemption deliveries can be
// retried safely. The returned bool reports whether a row was actually
// added.
func (db *DB) InsertPending(ctx context.Context, channelID string, req SongRequest) (bool, error) {
	artists, err := json.Marshal(req.Artists)
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO pending_requests
		(channel_id, event_id, track_id, track_name, artists, album, album_cover_url, requester_id, requester_name, requested_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		channelID, req.EventID, req.TrackID, req.TrackName, string(artists), req.Album,
		req.AlbumCoverURL, req.RequesterID, req.RequesterName, req.RequestedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeletePending removes a pending request if present. Deleting an unknown
// event ID is not an error.
func (db *DB) DeletePending(ctx context.Context, channelID, eventID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM pending_requests WHERE channel_id=? AND event_id=?`, channelID, eventID)
	return err
}

// MoveToHistory promotes the pending request identified by eventID into the
// history table with the supplied played-at time. The delete and insert run
// in one transaction so the request is never in both tables, and never in
// neither, regardless of where a crash lands. A SongRequestNotFoundError is
// returned when no pending request matches, including when the event was
// already promoted.
func (db *DB) MoveToHistory(ctx context.Context, channelID, eventID string, playedAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var req SongRequest
	var artists string
	err = tx.QueryRowContext(ctx, `SELECT track_id, track_name, artists, album, album_cover_url, requester_id, requester_name, requested_at
		FROM pending_requests WHERE channel_id=? AND event_id=?`, channelID, eventID).
		Scan(&req.TrackID, &req.TrackName, &artists, &req.Album, &req.AlbumCoverURL, &req.RequesterID, &req.RequesterName, &req.RequestedAt)
	if err == sql.ErrNoRows {
		return outcome.Errorf(outcome.TagSongRequestNotFound, "no pending request with event id %q", eventID)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_requests WHERE channel_id=? AND event_id=?`, channelID, eventID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO request_history
		(channel_id, event_id, track_id, track_name, artists, album, album_cover_url, requester_id, requester_name, requested_at, played_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		channelID, eventID, req.TrackID, req.TrackName, artists, req.Album,
		req.AlbumCoverURL, req.RequesterID, req.RequesterName, req.RequestedAt.UTC(), playedAt.UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// History returns a page of played requests ordered most recent first, plus
// the total number of rows matching the filter independent of the page
// window. since and until bound played_at inclusively; either may be nil.
// The driver stores timestamps as text and compares them that way, so every
// bound is normalized to UTC to match the stored rows.
func (db *DB) History(ctx context.Context, channelID string, limit, offset int, since, until *time.Time) ([]HistoryEntry, int, error) {
	where := `WHERE channel_id=?`
	args := []any{channelID}
	if since != nil {
		where += ` AND played_at>=?`
		args = append(args, since.UTC())
	}
	if until != nil {
		where += ` AND played_at<=?`
		args = append(args, until.UTC())
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_history `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.QueryContext(ctx, `SELECT event_id, track_id, track_name, artists, album, album_cover_url, requester_id, requester_name, requested_at, played_at
		FROM request_history `+where+` ORDER BY played_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var artists string
		if err := rows.Scan(&e.EventID, &e.TrackID, &e.TrackName, &artists, &e.Album, &e.AlbumCoverURL,
			&e.RequesterID, &e.RequesterName, &e.RequestedAt, &e.PlayedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal([]byte(artists), &e.Artists); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Pending returns up to limit queued requests ordered oldest first, the order
// in which they should be played.
func (db *DB) Pending(ctx context.Context, channelID string, limit int) ([]SongRequest, error) {
	rows, err := db.QueryContext(ctx, `SELECT event_id, track_id, track_name, artists, album, album_cover_url, requester_id, requester_name, requested_at
		FROM pending_requests WHERE channel_id=? ORDER BY requested_at ASC, event_id ASC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []SongRequest
	for rows.Next() {
		var r SongRequest
		var artists string
		if err := rows.Scan(&r.EventID, &r.TrackID, &r.TrackName, &artists, &r.Album, &r.AlbumCoverURL,
			&r.RequesterID, &r.RequesterName, &r.RequestedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(artists), &r.Artists); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// HasRecentRequest reports whether the given user already requested the given
// track at or after the cutoff time. Both the pending queue (by requested_at)
// and history (by played_at) are consulted; a match on only one of user or
// track does not count.
func (db *DB) HasRecentRequest(ctx context.Context, channelID, requesterID, trackID string, cutoff time.Time) (bool, error) {
	cutoff = cutoff.UTC()
	var n int
	err := db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM pending_requests WHERE channel_id=? AND requester_id=? AND track_id=? AND requested_at>=?)
		+ (SELECT COUNT(*) FROM request_history WHERE channel_id=? AND requester_id=? AND track_id=? AND played_at>=?)`,
		channelID, requesterID, trackID, cutoff,
		channelID, requesterID, trackID, cutoff).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TrackCount reports how many times a track appears in history.
type TrackCount struct {
	TrackID      string `json:"track_id"`
	TrackName    string `json:"track_name"`
	RequestCount int    `json:"request_count"`
}

// RequesterCount reports how many requests a viewer has had played.
type RequesterCount struct {
	RequesterID   string `json:"requester_id"`
	RequesterName string `json:"requester_name"`
	RequestCount  int    `json:"request_count"`
}

// TopTracks returns the most requested tracks derived from history only.
// Rows that tie on count break by earliest first play, then track ID, so the
// ordering is deterministic.
func (db *DB) TopTracks(ctx context.Context, channelID string, limit int) ([]TrackCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT track_id, MAX(track_name), COUNT(*) c
		FROM request_history WHERE channel_id=?
		GROUP BY track_id ORDER BY c DESC, MIN(played_at) ASC, track_id ASC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, err
	}
	return scanTrackCounts(rows)
}

// TopTracksByUser is TopTracks restricted to a single requester.
func (db *DB) TopTracksByUser(ctx context.Context, channelID, requesterID string, limit int) ([]TrackCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT track_id, MAX(track_name), COUNT(*) c
		FROM request_history WHERE channel_id=? AND requester_id=?
		GROUP BY track_id ORDER BY c DESC, MIN(played_at) ASC, track_id ASC LIMIT ?`, channelID, requesterID, limit)
	if err != nil {
		return nil, err
	}
	return scanTrackCounts(rows)
}

// TopRequesters returns the viewers with the most played requests, using the
// same deterministic tie-break as TopTracks.
func (db *DB) TopRequesters(ctx context.Context, channelID string, limit int) ([]RequesterCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT requester_id, MAX(requester_name), COUNT(*) c
		FROM request_history WHERE channel_id=?
		GROUP BY requester_id ORDER BY c DESC, MIN(played_at) ASC, requester_id ASC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RequesterCount
	for rows.Next() {
		var rc RequesterCount
		if err := rows.Scan(&rc.RequesterID, &rc.RequesterName, &rc.RequestCount); err != nil {
			return nil, err
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}

func scanTrackCounts(rows *sql.Rows) ([]TrackCount, error) {
	defer rows.Close()
	var res []TrackCount
	for rows.Next() {
		var tc TrackCount
		if err := rows.Scan(&tc.TrackID, &tc.TrackName, &tc.RequestCount); err != nil {
			return nil, err
		}
		res = append(res, tc)
	}
	return res, rows.Err()
}
