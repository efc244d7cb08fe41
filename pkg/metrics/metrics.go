// Package metrics registers the application's Prometheus collectors and
// provides the refresher wrapper that counts token refresh outcomes per
// provider.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"SongRequest-Go/pkg/token"
)

var (
	// TokenRefreshes counts upstream token refresh calls by provider and
	// outcome ("success" or "error").
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "songrequest_token_refreshes_total",
		Help: "Upstream OAuth token refresh calls.",
	}, []string{"provider", "outcome"})

	// RequestsPersisted counts accepted song requests.
	RequestsPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "songrequest_requests_persisted_total",
		Help: "Song requests written to the pending queue.",
	})

	// HistoryWrites counts pending requests promoted to history.
	HistoryWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "songrequest_history_writes_total",
		Help: "Pending requests promoted to play history.",
	})
)

func init() {
	prometheus.MustRegister(TokenRefreshes, RequestsPersisted, HistoryWrites)
}

// ObserveRefresher wraps a token refresher so every upstream call increments
// TokenRefreshes for the given provider label.
func ObserveRefresher(provider string, next token.Refresher) token.Refresher {
	return &observedRefresher{provider: provider, next: next}
}

type observedRefresher struct {
	provider string
	next     token.Refresher
}

func (o *observedRefresher) Refresh(ctx context.Context, refreshToken string) (*token.Response, error) {
	resp, err := o.next.Refresh(ctx, refreshToken)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	TokenRefreshes.WithLabelValues(o.provider, outcome).Inc()
	return resp, err
}
