package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Logout tells the platform the session is over. Failures are logged and
// never returned as errors.
func Logout(ctx context.Context, client *http.Client, url string, auth Authorizer, logger *zap.Logger) Outcome {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	out := post(ctx, client, url, auth)
	if out.OK() {
		logger.Info("logout signal sent", zap.Int("status", out.StatusCode))
	} else {
		logger.Warn("logout signal failed", zap.Stringer("outcome", out))
	}
	return out
}
