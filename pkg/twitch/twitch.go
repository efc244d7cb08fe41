// Package twitch holds the Twitch side of the upstream boundary: the token
// refresher used by the channel's Twitch token manager and the notification
// payloads the streaming platform delivers when a broadcast starts or stops.

package twitch

import (
	"net/http"
	"time"

	"SongRequest-Go/pkg/token"
)

// tokenURL is Twitch's OAuth token endpoint.
const tokenURL = "https://id.twitch.tv/oauth2/token"

// NewRefresher returns the token refresher for Twitch. Twitch expects client
// credentials as form fields rather than an Authorization header.
func NewRefresher(clientID, clientSecret string) *token.FormRefresher {
	return &token.FormRefresher{
		Client:       &http.Client{Timeout: 10 * time.Second},
		URL:          tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
}

// StreamEvent is the subset of a stream.online / stream.offline notification
// the application consumes.
type StreamEvent struct {
	BroadcasterUserID string    `json:"broadcaster_user_id"`
	BroadcasterLogin  string    `json:"broadcaster_user_login"`
	StartedAt         time.Time `json:"started_at,omitempty"`
}
