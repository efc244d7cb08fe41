// Package queue exposes the song-request bookkeeping for one channel. A
// Store binds the persistence layer to a channel ID and dispatches every
// operation through the actor runtime, so all turns for one channel execute
// one at a time in arrival order while different channels proceed
// independently.

package queue

import (
	"context"
	"time"

	"SongRequest-Go/pkg/actor"
	"SongRequest-Go/pkg/db"
)

// Store is the channel-bound song queue and history store.
type Store struct {
	channelID string
	db        *db.DB
	rt        *actor.Runtime

	// now is swapped out in tests to control the duplicate window.
	now func() time.Time
}

// New returns a Store for the given channel.
func New(channelID string, database *db.DB, rt *actor.Runtime) *Store {
	return &Store{channelID: channelID, db: database, rt: rt, now: time.Now}
}

// ChannelID reports which channel this store serves.
func (s *Store) ChannelID() string { return s.channelID }

// run executes fn as one turn on this channel's mailbox.
func (s *Store) run(ctx context.Context, fn func()) error {
	return s.rt.Do(ctx, "queue:"+s.channelID, fn)
}

// PersistRequest stores a pending request. Persisting an event ID that
// already exists is a silent success so deliveries can be retried; the
// returned bool reports whether this call actually added the request.
func (s *Store) PersistRequest(ctx context.Context, req db.SongRequest) (bool, error) {
	var inserted bool
	var err error
	if derr := s.run(ctx, func() { inserted, err = s.db.InsertPending(ctx, s.channelID, req) }); derr != nil {
		return false, derr
	}
	return inserted, err
}

// DeleteRequest removes a pending request. Unknown event IDs succeed.
func (s *Store) DeleteRequest(ctx context.Context, eventID string) error {
	var err error
	if derr := s.run(ctx, func() { err = s.db.DeletePending(ctx, s.channelID, eventID) }); derr != nil {
		return derr
	}
	return err
}

// WriteHistory atomically moves a pending request into history with the
// given played-at time. It fails with a SongRequestNotFoundError when the
// event is not pending, including when it was already moved; the call is
// deliberately not idempotent.
func (s *Store) WriteHistory(ctx context.Context, eventID string, playedAt time.Time) error {
	var err error
	if derr := s.run(ctx, func() { err = s.db.MoveToHistory(ctx, s.channelID, eventID, playedAt) }); derr != nil {
		return derr
	}
	return err
}

// HistoryPage is one window of history plus the total count of entries
// matching the filter regardless of the window.
type HistoryPage struct {
	Entries    []db.HistoryEntry `json:"entries"`
	TotalCount int               `json:"total_count"`
}

// History returns a page of played requests ordered most recent first.
// since and until, when non-nil, bound played-at inclusively.
func (s *Store) History(ctx context.Context, limit, offset int, since, until *time.Time) (HistoryPage, error) {
	var page HistoryPage
	var err error
	if derr := s.run(ctx, func() {
		page.Entries, page.TotalCount, err = s.db.History(ctx, s.channelID, limit, offset, since, until)
	}); derr != nil {
		return HistoryPage{}, derr
	}
	return page, err
}

// Pending returns up to limit queued requests oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]db.SongRequest, error) {
	var reqs []db.SongRequest
	var err error
	if derr := s.run(ctx, func() { reqs, err = s.db.Pending(ctx, s.channelID, limit) }); derr != nil {
		return nil, derr
	}
	return reqs, err
}

// CheckDuplicate reports whether the same user requested the same track
// within the trailing window, looking at both the pending queue and history.
func (s *Store) CheckDuplicate(ctx context.Context, requesterID, trackID string, window time.Duration) (bool, error) {
	cutoff := s.now().Add(-window)
	var dup bool
	var err error
	if derr := s.run(ctx, func() {
		dup, err = s.db.HasRecentRequest(ctx, s.channelID, requesterID, trackID, cutoff)
	}); derr != nil {
		return false, derr
	}
	return dup, err
}

// TopTracks ranks tracks by how often they appear in history.
func (s *Store) TopTracks(ctx context.Context, limit int) ([]db.TrackCount, error) {
	var res []db.TrackCount
	var err error
	if derr := s.run(ctx, func() { res, err = s.db.TopTracks(ctx, s.channelID, limit) }); derr != nil {
		return nil, derr
	}
	return res, err
}

// TopTracksByUser ranks one requester's played tracks.
func (s *Store) TopTracksByUser(ctx context.Context, requesterID string, limit int) ([]db.TrackCount, error) {
	var res []db.TrackCount
	var err error
	if derr := s.run(ctx, func() { res, err = s.db.TopTracksByUser(ctx, s.channelID, requesterID, limit) }); derr != nil {
		return nil, derr
	}
	return res, err
}

// TopRequesters ranks viewers by how many of their requests were played.
func (s *Store) TopRequesters(ctx context.Context, limit int) ([]db.RequesterCount, error) {
	var res []db.RequesterCount
	var err error
	if derr := s.run(ctx, func() { res, err = s.db.TopRequesters(ctx, s.channelID, limit) }); derr != nil {
		return nil, derr
	}
	return res, err
}
