package oauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TwitchEndpoint is the Twitch identity token endpoint. Twitch expects client
// credentials in the form body.
var TwitchEndpoint = oauth2.Endpoint{
	AuthURL:   "https://id.twitch.tv/oauth2/authorize",
	TokenURL:  "https://id.twitch.tv/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// TwitchRefreshFunc returns a RefreshFunc that performs the refresh_token
// grant against endpoint.
func TwitchRefreshFunc(clientID, clientSecret string, endpoint oauth2.Endpoint) RefreshFunc {
	cfg := &oauth2.Config{ClientID: clientID, ClientSecret: clientSecret, Endpoint: endpoint}
	return func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		// an empty access token forces the token source to refresh
		tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return "", "", time.Time{}, "", fmt.Errorf("twitch token refresh: %w", err)
		}
		return tok.AccessToken, tok.RefreshToken, tok.Expiry, scopeString(tok.Extra("scope")), nil
	}
}

// scopeString flattens the scope field, which Twitch sends as a JSON array.
func scopeString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []any:
		parts := make([]string, 0, len(s))
		for _, p := range s {
			if str, ok := p.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
