// Package playersync watches each live channel's Spotify playback and
// promotes pending requests to history when their track starts playing. It
// is the main consumer of the token managers: every poll needs a valid
// access token, which exercises the live-gated transparent refresh.

package playersync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"SongRequest-Go/pkg/metrics"
	"SongRequest-Go/pkg/session"
	"SongRequest-Go/pkg/spotify"
)

// playbackReader is the subset of the Spotify client the poller needs,
// extracted so tests can substitute a stub.
type playbackReader interface {
	CurrentlyPlaying(ctx context.Context, accessToken string) (*spotify.NowPlaying, error)
}

// Poller drives the playback sync loop.
type Poller struct {
	Log      *logrus.Logger
	Sessions *session.Registry
	Player   playbackReader
	Interval time.Duration

	// now is swapped out in tests.
	now func() time.Time
}

// Run polls until ctx is cancelled. Per-channel errors are logged and do not
// stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, channel := range p.Sessions.Channels() {
				if err := p.SyncChannel(ctx, channel); err != nil {
					p.Log.WithError(err).WithField("channel", channel).Warn("playback sync")
				}
			}
		}
	}
}

// SyncChannel performs one poll for one channel: skip when offline, read the
// currently playing track, and if it matches a pending request mark that
// request played at the observed time.
func (p *Poller) SyncChannel(ctx context.Context, channelID string) error {
	sess, err := p.Sessions.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if !sess.Spotify.Live() {
		return nil
	}
	accessToken, err := sess.Spotify.GetValidToken(ctx)
	if err != nil {
		return err
	}
	np, err := p.Player.CurrentlyPlaying(ctx, accessToken)
	if err != nil {
		return err
	}
	if np == nil || !np.Playing {
		return nil
	}

	pending, err := sess.Queue.Pending(ctx, 50)
	if err != nil {
		return err
	}
	for _, req := range pending {
		if req.TrackID != np.TrackID {
			continue
		}
		playedAt := time.Now()
		if p.now != nil {
			playedAt = p.now()
		}
		if err := sess.Queue.WriteHistory(ctx, req.EventID, playedAt); err != nil {
			return err
		}
		metrics.HistoryWrites.Inc()
		p.Log.WithFields(logrus.Fields{
			"channel":  channelID,
			"event_id": req.EventID,
			"track":    req.TrackName,
		}).Info("request played")
		break
	}
	return nil
}
