// Command web initializes the song-request service and starts the HTTP
// server. Configuration is provided via environment variables for the
// Spotify and Twitch API credentials and the database location. The server
// exposes the JSON API under /api and Prometheus metrics under /metrics,
// and runs the playback sync loop in the background.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"SongRequest-Go/pkg/actor"
	"SongRequest-Go/pkg/db"
	"SongRequest-Go/pkg/handlers"
	"SongRequest-Go/pkg/playersync"
	"SongRequest-Go/pkg/session"
	"SongRequest-Go/pkg/spotify"
	"SongRequest-Go/pkg/twitch"
)

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})

	// Provider credentials are required for token refresh; without them the
	// service cannot keep upstream tokens alive.
	spotifyID := os.Getenv("SPOTIFY_CLIENT_ID")
	spotifySecret := os.Getenv("SPOTIFY_CLIENT_SECRET")
	twitchID := os.Getenv("TWITCH_CLIENT_ID")
	twitchSecret := os.Getenv("TWITCH_CLIENT_SECRET")
	if spotifyID == "" || spotifySecret == "" {
		log.Fatal("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set")
	}
	if twitchID == "" || twitchSecret == "" {
		log.Fatal("TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET must be set")
	}

	// DATABASE_PATH allows the SQLite file to be customised. It defaults to
	// a file named songrequests.db in the working directory.
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "songrequests.db"
	}
	database, err := db.New(dbPath)
	if err != nil {
		log.WithError(err).Fatal("db init")
	}
	defer database.Close()

	rt := actor.New()
	defer rt.Close()

	sessions := session.NewRegistry(database, rt,
		spotify.NewRefresher(spotifyID, spotifySecret),
		twitch.NewRefresher(twitchID, twitchSecret))
	player := spotify.NewClient()
	app := &handlers.Application{Sessions: sessions, Player: player}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/requests", app.Requests)
	mux.HandleFunc("/api/requests/played", app.MarkPlayed)
	mux.HandleFunc("/api/requests/duplicate", app.DuplicateCheck)
	mux.HandleFunc("/api/history", app.History)
	mux.HandleFunc("/api/history/top-tracks", app.TopTracks)
	mux.HandleFunc("/api/history/top-requesters", app.TopRequesters)
	mux.HandleFunc("/api/tracks/resolve", app.ResolveTrack)
	mux.HandleFunc("/api/tokens", app.Tokens)
	mux.HandleFunc("/api/stream/online", app.StreamOnline)
	mux.HandleFunc("/api/stream/offline", app.StreamOffline)
	mux.Handle("/metrics", promhttp.Handler())

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":4000"
	}
	syncInterval := 15 * time.Second
	if s := os.Getenv("SYNC_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			syncInterval = d
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: mux}
	poller := &playersync.Poller{Log: log, Sessions: sessions, Player: player, Interval: syncInterval}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := poller.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
