// Package oauth keeps the chat token fresh. Tokens live in the oauth_tokens
// table; a jittered background loop refreshes them when expiry falls within a
// configured window and hands the new access token to the chat client.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// ProviderTwitch is the oauth_tokens key of the chat token.
const ProviderTwitch = "twitch"

// ErrNoRefreshToken is returned when neither a seed nor a stored refresh token exists.
var ErrNoRefreshToken = errors.New("no refresh token available")

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// TokenStore persists provider tokens.
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

// OnRefresh receives every newly issued access token.
type OnRefresh func(accessToken string)

// RefreshNow refreshes the provider token once, persists it and notifies
// onRefresh. seedRefresh is used when the store holds no refresh token yet.
func RefreshNow(ctx context.Context, store TokenStore, provider, seedRefresh string, fn RefreshFunc, onRefresh OnRefresh) (string, error) {
	_, rt, _, scope, err := store.GetOAuthToken(ctx, provider)
	if err != nil {
		return "", err
	}
	if rt == "" {
		rt = seedRefresh
	}
	if rt == "" {
		return "", ErrNoRefreshToken
	}
	return refreshOnce(ctx, store, provider, rt, scope, fn, onRefresh)
}

func refreshOnce(ctx context.Context, store TokenStore, provider, rt, scope string, fn RefreshFunc, onRefresh OnRefresh) (string, error) {
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := fn(ctx2, rt)
	cancel()
	if err != nil {
		return "", err
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := store.UpsertOAuthToken(ctx, provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		// the token is still usable for this process
		slog.Warn("token persist failed", slog.String("provider", provider), slog.Any("err", err))
	}
	if onRefresh != nil {
		onRefresh(newAT)
	}
	slog.Info("token refreshed", slog.String("provider", provider), slog.Time("expires_at", newExp))
	return newAT, nil
}

// StartRefresher launches a goroutine that periodically checks the stored
// token and refreshes it.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store TokenStore, provider string, interval, window time.Duration, fn RefreshFunc, onRefresh OnRefresh) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	go func() {
		// Randomize initial delay to spread load across instances.
		//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
		initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			checkAndRefresh(ctx, store, provider, window, fn, onRefresh)

			// per-iteration jitter of +-20%
			jitterRange := int64(interval/5) + 1
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			nextSleep := interval + time.Duration(rand.Int63n(jitterRange*2)-jitterRange)
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}

func checkAndRefresh(ctx context.Context, store TokenStore, provider string, window time.Duration, fn RefreshFunc, onRefresh OnRefresh) {
	_, rt, exp, scope, err := store.GetOAuthToken(ctx, provider)
	if err != nil {
		slog.Debug("token lookup failed", slog.String("provider", provider), slog.Any("err", err))
		return
	}
	// If still outside window skip quickly
	if rt == "" || time.Until(exp) > window {
		return
	}
	if _, err := refreshOnce(ctx, store, provider, rt, scope, fn, onRefresh); err != nil {
		slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
	}
}
