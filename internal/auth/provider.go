package auth

import (
	"context"
	"net/http"
)

// Provider supplies the bearer token for a run. StaticTokenProvider wraps a
// token given on the command line; LoginProvider holds the token from one
// POST to the login endpoint. Neither refreshes: the token is fixed for the
// whole run.
//
// The same Provider authorizes load requests, heartbeats and the logout
// call.
type Provider interface {
	// Token returns the bearer token.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets "Authorization: Bearer <token>" on req.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases the provider. The token must not be used afterwards.
	Close() error
}
