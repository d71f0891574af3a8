// Package httpclient provides HTTP client utilities for the loadgen load driver.
//
// The httpclient package handles request construction and execution with support for:
//   - Configurable timeouts and a connection pool sized to the worker count
//   - Bearer token injection through an [AuthProvider]
//   - Optional X-Request-Id correlation headers
//   - W3C trace context propagation
//
// # Request Building
//
// Use [NewRequestBuilder] to create a new request builder from configuration:
//
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// For requests requiring authentication, use [NewRequestBuilderWithAuth]:
//
//	builder, err := httpclient.NewRequestBuilderWithAuth(cfg, authProvider)
//
// # HTTP Client
//
// The [NewClient] function creates an HTTP client tuned for load generation
// with a per-request timeout and connection reuse:
//
//	client := httpclient.NewClient(5*time.Second, 64)
//	resp, err := client.Do(req)
//	httpclient.DrainAndClose(resp.Body)
package httpclient
