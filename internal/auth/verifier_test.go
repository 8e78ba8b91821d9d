package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steepleworks/steeple/internal/shared"
)

func TestUserinfoVerifierSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"auth0|abc","email":"admin@gracechapel.org"}`))
	}))
	defer srv.Close()

	v := NewUserinfoVerifier(srv.URL, "auth0", time.Second)
	identity, err := v.Verify(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "auth0|abc", identity.SubjectID)
	assert.Equal(t, "admin@gracechapel.org", identity.Email)
	assert.Equal(t, "auth0", identity.Provider)
}

func TestUserinfoVerifierRejectsNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := NewUserinfoVerifier(srv.URL, "auth0", time.Second)
	_, err := v.Verify(context.Background(), "bad-token")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestUserinfoVerifierTimeoutFailsClosed(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	v := NewUserinfoVerifier(srv.URL, "auth0", 50*time.Millisecond)
	_, err := v.Verify(context.Background(), "slow-token")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestUserinfoVerifierRejectsIncompleteClaims(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sub":"auth0|abc"}`))
	}))
	defer srv.Close()

	v := NewUserinfoVerifier(srv.URL, "auth0", time.Second)
	_, err := v.Verify(context.Background(), "token")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}
