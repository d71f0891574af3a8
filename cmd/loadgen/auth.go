package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ra56/loadgen/internal/auth"
	"github.com/ra56/loadgen/internal/config"
)

// authenticate returns the bearer token provider for the run, or nil when
// requests go out unauthenticated. A static token wins over login.
func authenticate(ctx context.Context, cfg *config.Config, client *http.Client, logger *zap.Logger) (auth.Provider, error) {
	var provider auth.Provider
	switch {
	case cfg.Auth.Token != "":
		provider = auth.NewStaticTokenProvider(cfg.Auth.Token)
		logger.Info("using static token")
	case cfg.UsesLogin():
		loginURL := cfg.URLFor(cfg.Auth.LoginPath)
		lp, err := auth.Login(ctx, client, loginURL, cfg.Auth.Email, cfg.Auth.Password)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		logger.Info("logged in", zap.String("url", loginURL), zap.String("email", cfg.Auth.Email))
		provider = lp
	default:
		logger.Debug("no credentials configured; requests are unauthenticated")
		return nil, nil
	}

	token, err := provider.Token(ctx)
	if err != nil {
		provider.Close()
		return nil, err
	}
	checkTokenExpiry(token, cfg.Duration, logger)
	return provider, nil
}

// checkTokenExpiry warns when a JWT bearer token will lapse before the run
// ends. Tokens are never refreshed mid-run.
func checkTokenExpiry(token string, runFor time.Duration, logger *zap.Logger) {
	info, err := auth.InspectToken(token)
	if errors.Is(err, auth.ErrNotJWT) {
		logger.Debug("bearer token is opaque; expiry unknown")
		return
	}
	if err != nil {
		logger.Debug("could not inspect bearer token", zap.Error(err))
		return
	}
	if !info.HasExpiry() {
		return
	}
	end := time.Now().Add(runFor)
	if info.ExpiresBefore(end) {
		logger.Warn("bearer token expires before the run ends",
			zap.Time("expires_at", info.ExpiresAt),
			zap.Duration("run_duration", runFor),
		)
	}
}
