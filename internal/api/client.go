// Package api is the authenticated HTTP executor for the Praxis backend.
// It owns transport-level retry/backoff, bearer injection, transparent
// refresh-and-retry on 401, and normalization of every failure into *Error.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/praxislearn/praxis-cli/internal/config"
	"github.com/praxislearn/praxis-cli/internal/event"
	"github.com/praxislearn/praxis-cli/internal/model"
	"github.com/praxislearn/praxis-cli/internal/store"
)

const (
	retryWaitTime    = 250 * time.Millisecond
	retryMaxWaitTime = 2 * time.Second
)

// Client executes requests against the backend. All token reads and writes go
// through the shared persistent store; the refresh path is serialized by a
// singleflight group so concurrent 401s and proactive refreshes coalesce into
// one network call.
type Client struct {
	http *resty.Client
	st   store.Store
	bus  *event.Bus
	log  zerolog.Logger

	refreshGroup singleflight.Group

	// now is overridable in tests.
	now func() time.Time
}

// New creates a Client. Retries apply to transport failures and
// 408/429/5xx responses only; other 4xx (401 included) are never retried at
// the transport level.
func New(cfg *config.Config, st store.Store, bus *event.Bus, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.APIBaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(retryWaitTime).
		SetRetryMaxWaitTime(retryMaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return retryableStatus(r.StatusCode())
		})

	return &Client{
		http: httpClient,
		st:   st,
		bus:  bus,
		log:  log.With().Str("component", "api_client").Logger(),
		now:  time.Now,
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return status >= 500
	}
}

// ─── Token storage ─────────────────────────────────────────────────────

// Tokens returns the persisted token set, or nil when logged out.
func (c *Client) Tokens() *model.TokenSet {
	var ts model.TokenSet
	if err := c.st.Get(store.StateKey.Tokens, &ts); err != nil {
		return nil
	}
	if ts.AccessToken == "" && ts.RefreshToken == "" {
		return nil
	}
	return &ts
}

// SetTokens persists a token set. The entry has no store-level TTL; expiry is
// carried in the token set itself.
func (c *Client) SetTokens(ts *model.TokenSet) error {
	return c.st.Set(store.StateKey.Tokens, ts, 0)
}

// ClearTokens removes the persisted token set.
func (c *Client) ClearTokens() error {
	return c.st.Delete(store.StateKey.Tokens)
}

// sessionDead clears the local session and broadcasts the signal. Stale
// tokens and the cached snapshot must not outlive a backend rejection, or a
// cache-first verification would keep reporting a valid session.
func (c *Client) sessionDead() {
	_ = c.ClearTokens()
	_ = c.st.Delete(store.StateKey.UserSnapshot)
	c.bus.Emit(event.TypeUnauthorized)
}

// ─── Request execution ─────────────────────────────────────────────────

// get performs an authenticated GET and decodes the response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out, true)
}

// post performs an authenticated POST and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, true)
}

// postAnon performs an unauthenticated POST (login and refresh endpoints).
func (c *Client) postAnon(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, false)
}

// do executes one logical request. Authenticated requests require a stored
// access token; a 401 response triggers exactly one refresh-and-retry, and a
// second 401 is treated as session death.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var bearer string
	if authed {
		ts := c.Tokens()
		if ts == nil || ts.AccessToken == "" {
			return &Error{Code: ErrNotAuthenticated, Message: GetMessage(ErrNotAuthenticated), Timestamp: c.now()}
		}
		bearer = ts.AccessToken
	}

	resp, err := c.execute(ctx, method, path, body, bearer)
	if err != nil {
		return err
	}

	if authed && resp.StatusCode() == http.StatusUnauthorized {
		newAccess, refreshErr := c.Refresh(ctx)
		if refreshErr != nil {
			var apiErr *Error
			if errors.As(refreshErr, &apiErr) && apiErr.Code == ErrRefreshFailed {
				// The refresh token was rejected or is unusable.
				c.log.Warn().Str("path", path).Msg("Session rejected by backend, clearing local session")
				c.sessionDead()
				return newError(http.StatusUnauthorized, "")
			}
			c.log.Warn().Err(refreshErr).Str("path", path).Msg("Refresh after 401 failed")
			return newError(http.StatusUnauthorized, "")
		}

		resp, err = c.execute(ctx, method, path, body, newAccess)
		if err != nil {
			return err
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			// Second 401 with a fresh token: the session is dead.
			c.sessionDead()
			return newError(http.StatusUnauthorized, "")
		}
	}

	if !resp.IsSuccess() {
		return newError(resp.StatusCode(), errorDetail(resp.Body()))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &Error{
			Status:    resp.StatusCode(),
			Code:      ErrEmptyPayload,
			Message:   GetMessage(ErrEmptyPayload),
			Timestamp: c.now(),
		}
	}
	return nil
}

// execute runs the transport call (with resty-level retry) and converts
// transport failures into normalized errors.
func (c *Client) execute(ctx context.Context, method, path string, body any, bearer string) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if bearer != "" {
		req.SetHeader("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, &Error{Code: ErrNetwork, Message: err.Error(), Timestamp: c.now()}
	}
	return resp, nil
}

// errorDetail extracts the backend's error message from a failure body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Detail != "" {
		return payload.Detail
	}
	return payload.Message
}

// ─── Refresh coordinator ───────────────────────────────────────────────

// Refresh exchanges the stored refresh token for a new access token. All
// callers (proactive refresh and 401 recovery alike) coalesce onto one
// in-flight network call and receive the same result.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// EnsureFresh refreshes only when the access token expires within threshold.
// It is a no-op without a stored session.
func (c *Client) EnsureFresh(ctx context.Context, threshold time.Duration) error {
	ts := c.Tokens()
	if ts == nil || !ts.AccessExpiringWithin(c.now(), threshold) {
		return nil
	}
	_, err := c.Refresh(ctx)
	return err
}

func (c *Client) doRefresh(ctx context.Context) (string, error) {
	ts := c.Tokens()
	if ts == nil || !ts.HasRefresh(c.now()) {
		return "", &Error{Code: ErrRefreshFailed, Message: GetMessage(ErrRefreshFailed), Timestamp: c.now()}
	}

	var out model.RefreshTokenResponse
	req := model.RefreshTokenRequest{RefreshToken: ts.RefreshToken}
	if err := c.postAnon(ctx, "/api/auth/refresh-token", req, &out); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return "", &Error{Status: apiErr.Status, Code: ErrRefreshFailed, Message: GetMessage(ErrRefreshFailed), Timestamp: c.now()}
		}
		return "", err
	}
	if out.AccessToken == "" {
		return "", &Error{Code: ErrRefreshFailed, Message: GetMessage(ErrRefreshFailed), Timestamp: c.now()}
	}

	// The refresh token and its expiry are preserved unchanged; only the
	// access token and its expiry are replaced.
	ts.AccessToken = out.AccessToken
	ts.AccessExpiresAt = ExpiryFromEpoch(out.AccessToken, out.AccessTokenExpires)
	if err := c.SetTokens(ts); err != nil {
		return "", err
	}

	c.log.Debug().Time("access_expires_at", ts.AccessExpiresAt).Msg("Access token refreshed")
	return out.AccessToken, nil
}

// ExpiryFromEpoch converts an epoch-seconds expiry into a time, falling back
// to the token's own JWT exp claim when the wire value is absent.
func ExpiryFromEpoch(token string, epoch float64) time.Time {
	if epoch > 0 {
		return time.Unix(int64(epoch), 0)
	}
	// Unverified parse is fine here: the expiry only schedules the client's
	// proactive refresh, the backend still enforces it.
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Time{}
}
