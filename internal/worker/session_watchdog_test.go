package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/praxislearn/praxis-cli/internal/api"
	"github.com/praxislearn/praxis-cli/internal/config"
	"github.com/praxislearn/praxis-cli/internal/event"
	"github.com/praxislearn/praxis-cli/internal/model"
	"github.com/praxislearn/praxis-cli/internal/service"
	"github.com/praxislearn/praxis-cli/internal/store"
)

func TestSessionWatchdog_ProactivelyRefreshesNearExpiry(t *testing.T) {
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/refresh-token", r.URL.Path)
		atomic.AddInt32(&refreshCalls, 1)
		w.Write([]byte(`{"access_token":"fresh","token_type":"bearer","access_token_expires":4102444800}`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		APIBaseURL:       srv.URL,
		RequestTimeout:   5 * time.Second,
		RefreshThreshold: 10 * time.Minute,
		SleepThreshold:   150 * time.Minute,
	}
	st := store.NewMemStore()
	bus := event.NewBus(zerolog.Nop())
	client := api.New(cfg, st, bus, zerolog.Nop())
	sessions := service.NewSessionService(cfg, client, st, bus, zerolog.Nop())

	// Access token inside the refresh threshold.
	require.NoError(t, st.Set(store.StateKey.Tokens, model.TokenSet{
		AccessToken:      "stale",
		RefreshToken:     "refresh",
		AccessExpiresAt:  time.Now().Add(time.Minute),
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewSessionWatchdog(sessions, 10*time.Millisecond, zerolog.Nop())
	go w.Start(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&refreshCalls) >= 1
	}, time.Second, 5*time.Millisecond)

	// The refreshed token is no longer near expiry, so the ticks settle.
	ts := client.Tokens()
	require.Equal(t, "fresh", ts.AccessToken)
}

func TestSessionWatchdog_IdleWhenLoggedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected network call")
	}))
	defer srv.Close()

	cfg := &config.Config{APIBaseURL: srv.URL, RequestTimeout: time.Second, RefreshThreshold: 10 * time.Minute}
	st := store.NewMemStore()
	bus := event.NewBus(zerolog.Nop())
	client := api.New(cfg, st, bus, zerolog.Nop())
	sessions := service.NewSessionService(cfg, client, st, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewSessionWatchdog(sessions, 5*time.Millisecond, zerolog.Nop())
	go w.Start(ctx)
	time.Sleep(30 * time.Millisecond)
}
