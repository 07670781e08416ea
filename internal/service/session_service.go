package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxislearn/praxis-cli/internal/api"
	"github.com/praxislearn/praxis-cli/internal/config"
	"github.com/praxislearn/praxis-cli/internal/event"
	"github.com/praxislearn/praxis-cli/internal/model"
	"github.com/praxislearn/praxis-cli/internal/store"
)

// Common session errors.
var (
	ErrNotLoggedIn = errors.New("not logged in")
	ErrLoginFailed = errors.New("login failed")
)

// SessionService maintains a valid bearer session against the backend,
// transparently across long idle periods and machine suspends.
//
// Background maintenance (proactive refresh, wake-up re-validation) swallows
// errors after logging them; user-initiated operations (login, logout) return
// them.
type SessionService struct {
	cfg    *config.Config
	client *api.Client
	st     store.Store
	bus    *event.Bus
	log    zerolog.Logger

	// now is overridable in tests.
	now func() time.Time
}

// NewSessionService creates a SessionService.
func NewSessionService(cfg *config.Config, client *api.Client, st store.Store, bus *event.Bus, log zerolog.Logger) *SessionService {
	return &SessionService{
		cfg:    cfg,
		client: client,
		st:     st,
		bus:    bus,
		log:    log.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
}

// Authenticated reports whether a token set is stored locally.
func (s *SessionService) Authenticated() bool {
	return s.client.Tokens() != nil
}

// RequestCode asks the backend to email a verification code.
func (s *SessionService) RequestCode(ctx context.Context, email string) error {
	return s.client.SendVerificationCode(ctx, email)
}

// LoginWithCode exchanges an emailed verification code for a session.
func (s *SessionService) LoginWithCode(ctx context.Context, email, code string) error {
	resp, err := s.client.VerifyCode(ctx, email, code)
	if err != nil {
		return err
	}
	if !resp.Status || resp.AccessToken == "" {
		return ErrLoginFailed
	}

	tokens := &model.TokenSet{
		AccessToken:      resp.AccessToken,
		RefreshToken:     resp.RefreshToken,
		UserID:           resp.UserID,
		AccessExpiresAt:  api.ExpiryFromEpoch(resp.AccessToken, resp.AccessTokenExpires),
		RefreshExpiresAt: api.ExpiryFromEpoch(resp.RefreshToken, resp.RefreshTokenExpires),
	}
	return s.ProcessTokens(ctx, tokens)
}

// ProcessTokens persists a freshly issued token set, fetches the user profile
// and caches the composed snapshot. On a failed profile fetch the tokens are
// cleared again so no half-established session lingers.
func (s *SessionService) ProcessTokens(ctx context.Context, tokens *model.TokenSet) error {
	if err := s.client.SetTokens(tokens); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}

	user, err := s.client.Me(ctx)
	if err != nil {
		_ = s.client.ClearTokens()
		return fmt.Errorf("fetch profile: %w", err)
	}

	if err := s.cacheSnapshot(user); err != nil {
		return err
	}

	s.Touch()
	s.bus.Emit(event.TypeLogin)
	s.log.Info().Str("user_hash", UserHash(user.ID)).Msg("Session established")
	return nil
}

// cacheSnapshot stores the profile with its TTL and the derived user hash.
func (s *SessionService) cacheSnapshot(user *model.User) error {
	snapshot := model.UserSnapshot{
		User:     *user,
		UserHash: UserHash(user.ID),
		CachedAt: s.now(),
	}
	if err := s.st.Set(store.StateKey.UserSnapshot, snapshot, s.cfg.UserTTL); err != nil {
		return fmt.Errorf("cache user snapshot: %w", err)
	}
	return nil
}

// CachedUser returns the cached snapshot, or nil when absent or expired.
func (s *SessionService) CachedUser() *model.UserSnapshot {
	var snap model.UserSnapshot
	if err := s.st.Get(store.StateKey.UserSnapshot, &snap); err != nil {
		return nil
	}
	return &snap
}

// VerifySession checks that a usable session exists. Cache-first: a valid
// cached snapshot is adopted without a network call. Otherwise the profile is
// fetched (the remote client performs the single refresh-and-retry on 401);
// on a non-auth failure any existing local session is kept as a stale
// fallback before the session is finally declared invalid.
func (s *SessionService) VerifySession(ctx context.Context) bool {
	if snap := s.CachedUser(); snap != nil {
		return true
	}
	if !s.Authenticated() {
		return false
	}

	user, err := s.client.Me(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			s.log.Warn().Msg("Session rejected by backend")
			return false
		}
		// Transient failure: keep whatever local session exists.
		s.log.Warn().Err(err).Msg("Profile fetch failed, falling back to local session")
		return s.Authenticated()
	}

	if err := s.cacheSnapshot(user); err != nil {
		s.log.Warn().Err(err).Msg("Snapshot cache write failed")
	}
	s.bus.Emit(event.TypeRefreshUser)
	return true
}

// RefreshIfNeeded proactively refreshes the access token when it expires
// within the configured threshold. Errors are logged, not returned: this is
// background maintenance and must never interrupt a user flow.
func (s *SessionService) RefreshIfNeeded(ctx context.Context) {
	if !s.Authenticated() {
		return
	}
	if err := s.client.EnsureFresh(ctx, s.cfg.RefreshThreshold); err != nil {
		s.log.Warn().Err(err).Msg("Proactive token refresh failed")
	}
}

// Touch records the current time as the last user activity.
func (s *SessionService) Touch() {
	stamp := s.now().Unix()
	if err := s.st.Set(store.StateKey.LastActivity, stamp, 0); err != nil {
		s.log.Warn().Err(err).Msg("Activity stamp write failed")
	}
}

// LastActivity returns the recorded last-activity time, zero when unknown.
func (s *SessionService) LastActivity() time.Time {
	var stamp int64
	if err := s.st.Get(store.StateKey.LastActivity, &stamp); err != nil {
		return time.Time{}
	}
	return time.Unix(stamp, 0)
}

// HandleWakeUp re-validates the session after the process regains attention.
// An idle gap beyond the sleep threshold is treated as a possible machine
// suspend: the token is refreshed and the session fully verified, and on
// failure all auth state is cleared and a session-expired event fires. A
// shorter gap only runs the lightweight proactive refresh. The activity
// stamp is always reset.
func (s *SessionService) HandleWakeUp(ctx context.Context) {
	defer s.Touch()

	last := s.LastActivity()
	if last.IsZero() || !s.Authenticated() {
		return
	}

	elapsed := s.now().Sub(last)
	if elapsed <= s.cfg.SleepThreshold {
		s.RefreshIfNeeded(ctx)
		return
	}

	s.log.Info().Dur("elapsed", elapsed).Msg("Possible suspend detected, re-validating session")
	s.RefreshIfNeeded(ctx)
	if !s.VerifySession(ctx) {
		s.clearLocalState()
		s.bus.Emit(event.TypeSessionExpired)
		s.log.Warn().Msg("Session could not be re-validated, cleared")
	}
}

// Logout revokes the session server-side on a best-effort basis and always
// clears local state.
func (s *SessionService) Logout(ctx context.Context) {
	if s.Authenticated() {
		if err := s.client.Logout(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Server-side logout failed")
		}
	}
	s.clearLocalState()
	s.bus.Emit(event.TypeLogout)
}

func (s *SessionService) clearLocalState() {
	_ = s.client.ClearTokens()
	_ = s.st.Delete(store.StateKey.UserSnapshot)
}

// UserHash derives the non-reversible client-side user identifier.
func UserHash(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}
