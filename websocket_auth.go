package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"robotarena/server/internal/auth"
)

const tokenLeeway = 2 * time.Second

// spectatorAuthenticator decides whether a websocket upgrade may watch the battle and
// names the spectator when it does.
type spectatorAuthenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type allowAllAuthenticator struct{}

func (allowAllAuthenticator) Authenticate(*http.Request) (string, error) {
	return "", nil
}

type tokenAuthenticator struct {
	tokens   *auth.SpectatorTokens
	battleID string
}

func newTokenAuthenticator(secret, battleID string) (spectatorAuthenticator, error) {
	tokens, err := auth.NewSpectatorTokens(secret, tokenLeeway)
	if err != nil {
		return nil, err
	}
	return &tokenAuthenticator{tokens: tokens, battleID: battleID}, nil
}

// newSpectatorAuthenticator admits everyone when no secret is configured.
func newSpectatorAuthenticator(secret, battleID string) (spectatorAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return allowAllAuthenticator{}, nil
	}
	return newTokenAuthenticator(secret, battleID)
}

// Authenticate validates the incoming token and returns the spectator identifier.
func (a *tokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	if a == nil || a.tokens == nil {
		return "", errors.New("verifier not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", errors.New("missing auth token")
	}
	claims, err := a.tokens.Verify(token, a.battleID)
	if err != nil {
		return "", err
	}
	return claims.Spectator, nil
}
