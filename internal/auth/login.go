package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoAccessToken is returned when the login response carries no usable
// accessToken field.
var ErrNoAccessToken = errors.New("login response has no accessToken")

// maxLoginResponse bounds how much of the login body is read.
const maxLoginResponse = 1 << 20

// LoginError describes a login call rejected by the server.
type LoginError struct {
	StatusCode int
	Body       string
}

func (e *LoginError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("login failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("login failed with status %d: %s", e.StatusCode, e.Body)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginProvider holds the bearer token obtained from a single email/password
// login. The token is never refreshed.
type LoginProvider struct {
	*StaticTokenProvider
	client *http.Client
}

// Login posts the credentials to loginURL and returns a provider holding the
// accessToken from the JSON response.
func Login(ctx context.Context, client *http.Client, loginURL, email, password string) (*LoginProvider, error) {
	if client == nil {
		client = http.DefaultClient
	}

	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginResponse))
	if err != nil {
		return nil, fmt.Errorf("read login response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &LoginError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	token, err := extractAccessToken(body)
	if err != nil {
		return nil, err
	}

	return &LoginProvider{
		StaticTokenProvider: NewStaticTokenProvider(token),
		client:              client,
	}, nil
}

func extractAccessToken(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("decode login response: invalid JSON")
	}
	field := gjson.GetBytes(body, "accessToken")
	if !field.Exists() || field.Type != gjson.String {
		return "", ErrNoAccessToken
	}
	token := strings.TrimSpace(field.String())
	if token == "" {
		return "", ErrNoAccessToken
	}
	return token, nil
}

// Close releases idle connections held for the login call.
func (p *LoginProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
