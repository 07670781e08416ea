package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/praxislearn/praxis-cli/internal/api"
	"github.com/praxislearn/praxis-cli/internal/model"
)

// ErrCallbackTimeout is returned when the SSO redirect never arrives.
var ErrCallbackTimeout = errors.New("timed out waiting for the login redirect")

const doneHTML = `<!doctype html>
<html><head><title>Praxis</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h2>Login complete</h2>
<p>You can close this window and return to the terminal.</p>
</body></html>`

// SSOHandler completes browser-based SSO. The identity provider redirects to
// this loopback listener with the token bundle in the query string; the
// bundle is consumed exactly once and the browser is immediately redirected
// to a clean URL so the tokens never stay visible in the address bar.
type SSOHandler struct {
	log zerolog.Logger

	mu       sync.Mutex
	consumed bool
	tokens   chan *model.TokenSet
}

// NewSSOHandler creates an SSOHandler.
func NewSSOHandler(log zerolog.Logger) *SSOHandler {
	return &SSOHandler{
		log:    log.With().Str("component", "sso_callback").Logger(),
		tokens: make(chan *model.TokenSet, 1),
	}
}

// Register mounts the callback routes.
func (h *SSOHandler) Register(r *gin.Engine) {
	r.GET("/auth/callback", h.Callback)
	r.GET("/done", h.Done)
}

// Callback receives the SSO redirect. Missing parameters produce a 400; a
// repeated delivery is ignored after the first bundle is consumed.
func (h *SSOHandler) Callback(c *gin.Context) {
	tokens := extractTokens(c)
	if tokens == nil {
		h.log.Warn().Msg("SSO redirect missing required parameters")
		c.String(http.StatusBadRequest, "Missing login parameters. Please retry the login.")
		return
	}

	h.mu.Lock()
	if !h.consumed {
		h.consumed = true
		h.tokens <- tokens
	}
	h.mu.Unlock()

	c.Redirect(http.StatusFound, "/done")
}

// Done renders the post-login page at a token-free URL.
func (h *SSOHandler) Done(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doneHTML))
}

// extractTokens reads the token bundle from the redirect query string.
// Returns nil if any required field is absent.
func extractTokens(c *gin.Context) *model.TokenSet {
	access := c.Query("access_token")
	refresh := c.Query("refresh_token")
	userID := c.Query("user_id")
	accessExp, errA := strconv.ParseFloat(c.Query("access_token_expires"), 64)
	refreshExp, errR := strconv.ParseFloat(c.Query("refresh_token_expires"), 64)

	if access == "" || refresh == "" || userID == "" || errA != nil || errR != nil {
		return nil
	}
	return &model.TokenSet{
		AccessToken:      access,
		RefreshToken:     refresh,
		UserID:           userID,
		AccessExpiresAt:  api.ExpiryFromEpoch(access, accessExp),
		RefreshExpiresAt: api.ExpiryFromEpoch(refresh, refreshExp),
	}
}

// WaitForTokens serves the loopback listener until the redirect arrives or
// ctx expires, and returns the consumed token bundle.
func (h *SSOHandler) WaitForTokens(ctx context.Context, port string) (*model.TokenSet, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)

	srv := &http.Server{Addr: "127.0.0.1:" + port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	select {
	case tokens := <-h.tokens:
		// Give the browser a moment to follow the redirect to /done before
		// the listener goes away.
		time.Sleep(300 * time.Millisecond)
		shutdown()
		return tokens, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		shutdown()
		return nil, ErrCallbackTimeout
	}
}
