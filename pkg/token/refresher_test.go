package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SongRequest-Go/pkg/outcome"
)

func TestFormRefresherSuccess(t *testing.T) {
	var gotForm url.Values
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","expires_in":3600,"refresh_token":"next"}`))
	}))
	defer srv.Close()

	f := &FormRefresher{URL: srv.URL, ClientID: "id", ClientSecret: "secret", BasicAuth: true}
	resp, err := f.Refresh(context.Background(), "ref1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.AccessToken)
	assert.EqualValues(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "next", resp.RefreshToken)
	assert.Equal(t, "refresh_token", gotForm.Get("grant_type"))
	assert.Equal(t, "ref1", gotForm.Get("refresh_token"))
	assert.NotEmpty(t, gotAuth, "expected basic auth header")
	assert.Empty(t, gotForm.Get("client_id"), "credentials must not travel in the form with BasicAuth")
}

func TestFormRefresherFormCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	}))
	defer srv.Close()

	f := &FormRefresher{URL: srv.URL, ClientID: "id", ClientSecret: "secret"}
	resp, err := f.Refresh(context.Background(), "ref1")
	require.NoError(t, err)
	assert.Empty(t, resp.RefreshToken, "refresh_token is optional in responses")
}

func TestFormRefresherErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		tag    string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_grant"}`, outcome.TagTokenRefreshNetwork},
		{"server error", http.StatusInternalServerError, "", outcome.TagTokenRefreshNetwork},
		{"non-json body", http.StatusOK, "<html>oops</html>", outcome.TagTokenRefreshParse},
		{"missing fields", http.StatusOK, `{"token_type":"bearer"}`, outcome.TagTokenRefreshParse},
		{"zero expiry", http.StatusOK, `{"access_token":"x","expires_in":0}`, outcome.TagTokenRefreshParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f := &FormRefresher{URL: srv.URL, ClientID: "id", ClientSecret: "secret"}
			_, err := f.Refresh(context.Background(), "ref1")
			require.Error(t, err)
			assert.Equal(t, tt.tag, outcome.TagOf(err))
		})
	}
}

func TestFormRefresherConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refused connection

	f := &FormRefresher{URL: srv.URL, ClientID: "id", ClientSecret: "secret"}
	_, err := f.Refresh(context.Background(), "ref1")
	require.Error(t, err)
	assert.Equal(t, outcome.TagTokenRefreshNetwork, outcome.TagOf(err))
}
