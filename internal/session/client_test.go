package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-kit/vantage/internal/shared"
)

func TestClientLoginDecodesProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/login", r.URL.Path)

		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "alice", creds.Username)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"message": "login success",
			"data": {
				"accessToken": "tok-1|secret",
				"user": {"id": 1, "username": "alice", "active": true},
				"roles": [{"id": 1, "name": "viewer"}],
				"permissions": [{"id": 1, "key": "view:dashboard", "action": "view", "subject": "dashboard"}]
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	profile, err := client.Login(context.Background(), Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "tok-1|secret", profile.Token)
	require.Equal(t, "alice", profile.User.Username)
	require.Len(t, profile.Permissions, 1)
}

func TestClientFetchMeSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user", r.URL.Path)
		require.Equal(t, "Bearer tok-1|secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success": true, "message": "ok", "data": {"user": {"id": 1}}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	profile, err := client.FetchMe(context.Background(), "tok-1|secret")
	require.NoError(t, err)
	require.Equal(t, int64(1), profile.User.ID)
}

func TestClientClassifiesRejectionStatuses(t *testing.T) {
	status := http.StatusUnauthorized
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	_, err := client.FetchMe(context.Background(), "tok")
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)

	status = http.StatusLocked
	_, err = client.FetchMe(context.Background(), "tok")
	require.ErrorIs(t, err, shared.ErrAccountSuspended)

	status = http.StatusBadGateway
	_, err = client.FetchMe(context.Background(), "tok")
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrAuthenticationFailed)
	require.NotErrorIs(t, err, shared.ErrAccountSuspended)
}

func TestClientLogoutHitsEndpoint(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, "/logout", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success": true, "message": "logged out", "data": null}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.Logout(context.Background(), "tok"))
	require.True(t, called)
}
