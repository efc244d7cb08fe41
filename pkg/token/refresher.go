package token

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"SongRequest-Go/pkg/outcome"
)

// FormRefresher implements Refresher by posting a form-encoded
// refresh_token grant to a provider token endpoint. Both upstream providers
// speak this shape; they differ only in how client credentials travel, which
// BasicAuth selects: the Authorization header (Spotify) or form fields
// (Twitch).
type FormRefresher struct {
	Client       *http.Client
	URL          string
	ClientID     string
	ClientSecret string
	BasicAuth    bool
}

// Refresh posts the grant and parses the response. Failure modes are kept
// distinct for callers: a non-2xx status is a TokenRefreshNetworkError, and
// a body that is not JSON or lacks the required fields is a
// TokenRefreshParseError.
func (f *FormRefresher) Refresh(ctx context.Context, refreshToken string) (*Response, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if !f.BasicAuth {
		form.Set("client_id", f.ClientID)
		form.Set("client_secret", f.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if f.BasicAuth {
		req.SetBasicAuth(f.ClientID, f.ClientSecret)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, outcome.Wrap(outcome.TagTokenRefreshNetwork, "token refresh request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, outcome.Wrap(outcome.TagTokenRefreshNetwork, "reading token refresh response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, outcome.Errorf(outcome.TagTokenRefreshNetwork, "token refresh returned status %d", resp.StatusCode)
	}

	var tr Response
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, outcome.Wrap(outcome.TagTokenRefreshParse, "token refresh response is not valid JSON", err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return nil, outcome.New(outcome.TagTokenRefreshParse, "token refresh response missing access_token or expires_in")
	}
	return &tr, nil
}
