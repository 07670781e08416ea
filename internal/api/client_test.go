package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/praxislearn/praxis-cli/internal/config"
	"github.com/praxislearn/praxis-cli/internal/event"
	"github.com/praxislearn/praxis-cli/internal/model"
	"github.com/praxislearn/praxis-cli/internal/store"
)

func newTestClient(t *testing.T, baseURL string) (*Client, *store.MemStore, *event.Bus) {
	t.Helper()
	cfg := &config.Config{
		APIBaseURL:     baseURL,
		RequestTimeout: 5 * time.Second,
		RetryCount:     2,
	}
	st := store.NewMemStore()
	bus := event.NewBus(zerolog.Nop())
	c := New(cfg, st, bus, zerolog.Nop())
	// Fast retries in tests.
	c.http.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)
	return c, st, bus
}

func seedTokens(t *testing.T, c *Client, access, refresh string) {
	t.Helper()
	require.NoError(t, c.SetTokens(&model.TokenSet{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  time.Now().Add(time.Hour),
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"id":"u1","username":"pat","email":"pat@x.io"}`))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	seedTokens(t, c, "access", "refresh")

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pat", user.Username)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"bad input"}`))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	seedTokens(t, c, "access", "refresh")

	_, err := c.Me(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, ErrValidation, apiErr.Code)
	require.Equal(t, "bad input", apiErr.Message)
}

func TestClient_RequiresTokenWhenAuthed(t *testing.T) {
	c, _, _ := newTestClient(t, "http://127.0.0.1:0")

	_, err := c.Me(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, ErrNotAuthenticated, apiErr.Code)
}

func TestClient_RefreshAndRetryOn401(t *testing.T) {
	var refreshCalls, meCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh-token":
			atomic.AddInt32(&refreshCalls, 1)
			w.Write([]byte(`{"access_token":"fresh","token_type":"bearer","access_token_expires":` +
				"4102444800" + `}`))
		case "/api/auth/me":
			atomic.AddInt32(&meCalls, 1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"id":"u1","username":"pat","email":"pat@x.io"}`))
		}
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	seedTokens(t, c, "stale", "refresh")

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pat", user.Username)
	require.EqualValues(t, 1, atomic.LoadInt32(&refreshCalls))
	require.EqualValues(t, 2, atomic.LoadInt32(&meCalls))

	// The refresh token survives, only the access token is replaced.
	ts := c.Tokens()
	require.Equal(t, "fresh", ts.AccessToken)
	require.Equal(t, "refresh", ts.RefreshToken)
	require.True(t, ts.AccessExpiresAt.Equal(time.Unix(4102444800, 0)))
}

func TestClient_SecondUnauthorizedEmitsEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh-token" {
			w.Write([]byte(`{"access_token":"fresh","token_type":"bearer","access_token_expires":4102444800}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _, bus := newTestClient(t, srv.URL)
	seedTokens(t, c, "stale", "refresh")

	events, cancel := bus.Subscribe(event.TypeUnauthorized)
	defer cancel()

	_, err := c.Me(context.Background())
	require.True(t, IsUnauthorized(err))

	select {
	case evt := <-events:
		require.Equal(t, event.TypeUnauthorized, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("no unauthorized event published")
	}
}

func TestClient_TerminalUnauthorizedClearsLocalSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	}))
	defer srv.Close()

	c, st, bus := newTestClient(t, srv.URL)
	seedTokens(t, c, "stale", "rejected-refresh")
	require.NoError(t, st.Set(store.StateKey.UserSnapshot, model.UserSnapshot{UserHash: "h"}, time.Hour))

	events, cancel := bus.Subscribe(event.TypeUnauthorized)
	defer cancel()

	_, err := c.Me(context.Background())
	require.True(t, IsUnauthorized(err))

	require.Nil(t, c.Tokens())
	var snap model.UserSnapshot
	require.ErrorIs(t, st.Get(store.StateKey.UserSnapshot, &snap), store.ErrNotFound)

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("no unauthorized event published")
	}
}

func TestClient_TransientRefreshFailureKeepsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh-token" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	c.http.SetRetryCount(0)
	seedTokens(t, c, "stale", "refresh")

	_, err := c.Me(context.Background())
	require.True(t, IsUnauthorized(err))

	// A refresh endpoint outage is not a session rejection.
	require.NotNil(t, c.Tokens())
}

func TestClient_ConcurrentRefreshesCoalesce(t *testing.T) {
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/refresh-token", r.URL.Path)
		atomic.AddInt32(&refreshCalls, 1)
		time.Sleep(50 * time.Millisecond) // hold the flight open
		w.Write([]byte(`{"access_token":"fresh","token_type":"bearer","access_token_expires":4102444800}`))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	seedTokens(t, c, "stale", "refresh")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			access, err := c.Refresh(context.Background())
			require.NoError(t, err)
			require.Equal(t, "fresh", access)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&refreshCalls))
}

func TestClient_RefreshWithoutRefreshToken(t *testing.T) {
	c, _, _ := newTestClient(t, "http://127.0.0.1:0")

	_, err := c.Refresh(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, ErrRefreshFailed, apiErr.Code)
}

func TestClient_EnsureFresh(t *testing.T) {
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		w.Write([]byte(`{"access_token":"fresh","token_type":"bearer","access_token_expires":4102444800}`))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	// Far from expiry: no call.
	seedTokens(t, c, "access", "refresh")
	require.NoError(t, c.EnsureFresh(context.Background(), 10*time.Minute))
	require.EqualValues(t, 0, atomic.LoadInt32(&refreshCalls))

	// Inside the threshold: one call.
	require.NoError(t, c.SetTokens(&model.TokenSet{
		AccessToken:      "access",
		RefreshToken:     "refresh",
		AccessExpiresAt:  time.Now().Add(time.Minute),
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}))
	require.NoError(t, c.EnsureFresh(context.Background(), 10*time.Minute))
	require.EqualValues(t, 1, atomic.LoadInt32(&refreshCalls))
}

func TestExpiryFromEpoch(t *testing.T) {
	require.Equal(t, time.Unix(4102444800, 0), ExpiryFromEpoch("whatever", 4102444800))

	// Without an epoch the JWT exp claim is used, unverified.
	// {"exp": 4102444800} signed with an arbitrary key.
	token := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
		"eyJleHAiOjQxMDI0NDQ4MDB9." +
		"signature-is-not-checked"
	require.Equal(t, time.Unix(4102444800, 0).UTC(), ExpiryFromEpoch(token, 0).UTC())

	require.True(t, ExpiryFromEpoch("not-a-jwt", 0).IsZero())
}

func TestClient_EmptyQuestionsIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"questions":[]}`))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	seedTokens(t, c, "access", "refresh")

	_, err := c.EvaluateMixed(context.Background(), model.MixedEvaluationRequest{
		Topics:       []string{"Pricing"},
		NumQuestions: 5,
		MCQWeight:    0.6,
		OpenWeight:   0.4,
		Language:     "French",
	})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, ErrEmptyPayload, apiErr.Code)
}

func TestClient_ValidationBeforeNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)
	seedTokens(t, c, "access", "refresh")

	// Weights that do not sum to 1.0 never leave the client.
	_, err := c.EvaluateMixed(context.Background(), model.MixedEvaluationRequest{
		Topics:       []string{"Pricing"},
		NumQuestions: 5,
		MCQWeight:    0.8,
		OpenWeight:   0.4,
		Language:     "French",
	})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, ErrValidation, apiErr.Code)
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}
