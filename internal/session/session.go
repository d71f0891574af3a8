// Package session keeps a logged-in session visible to the platform under
// test while a run is in progress. Heartbeats and the logout notification are
// best effort: every call yields an Outcome that is logged and dropped.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ra56/loadgen/internal/httpclient"
)

// Authorizer adds credentials to an outgoing request.
type Authorizer interface {
	InjectHeader(ctx context.Context, req *http.Request) error
}

// Outcome is the result of one auxiliary call.
type Outcome struct {
	URL        string
	StatusCode int
	Latency    time.Duration
	Err        error
}

// OK reports whether the call reached the server and got a 2xx answer.
func (o Outcome) OK() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300
}

func (o Outcome) String() string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("%s: %v", o.URL, o.Err)
	default:
		return fmt.Sprintf("%s: HTTP %d in %s", o.URL, o.StatusCode, o.Latency.Round(time.Millisecond))
	}
}

// post sends an empty authorized POST and reports what happened.
func post(ctx context.Context, client *http.Client, url string, auth Authorizer) Outcome {
	out := Outcome{URL: url}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		out.Err = err
		return out
	}
	if auth != nil {
		if err := auth.InjectHeader(ctx, req); err != nil {
			out.Err = err
			return out
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	out.Latency = time.Since(start)
	if err != nil {
		out.Err = err
		return out
	}
	out.StatusCode = resp.StatusCode
	httpclient.DrainAndClose(resp.Body)
	return out
}
