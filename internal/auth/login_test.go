package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockLoginServer records login calls and answers with a fixed response.
type mockLoginServer struct {
	server     *httptest.Server
	calls      int32
	statusCode int
	body       string
	mu         sync.Mutex
	lastBody   loginRequest
	lastType   string
}

func newMockLoginServer(t *testing.T, status int, body string) *mockLoginServer {
	t.Helper()
	m := &mockLoginServer{statusCode: status, body: body}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.calls, 1)
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m.mu.Lock()
		m.lastType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&m.lastBody)
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(m.statusCode)
		_, _ = w.Write([]byte(m.body))
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockLoginServer) url() string { return m.server.URL + "/auth/login" }

func TestLoginSuccess(t *testing.T) {
	srv := newMockLoginServer(t, http.StatusOK, `{"accessToken":"tok-123","user":{"id":7}}`)

	provider, err := Login(context.Background(), srv.server.Client(), srv.url(), "viewer@example.com", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	defer provider.Close()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.lastBody.Email != "viewer@example.com" || srv.lastBody.Password != "pw" {
		t.Errorf("login body = %+v", srv.lastBody)
	}
	if srv.lastType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", srv.lastType)
	}

	token, err := provider.Token(context.Background())
	if err != nil || token != "tok-123" {
		t.Fatalf("Token() = %q, %v", token, err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/videos", nil)
	if err := provider.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok-123" {
		t.Errorf("Authorization = %q", got)
	}

	// The token is cached; no further login calls.
	_, _ = provider.Token(context.Background())
	if atomic.LoadInt32(&srv.calls) != 1 {
		t.Errorf("login calls = %d, want 1", atomic.LoadInt32(&srv.calls))
	}
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"missing token", http.StatusOK, `{"user":{"id":7}}`, ErrNoAccessToken},
		{"empty token", http.StatusOK, `{"accessToken":"  "}`, ErrNoAccessToken},
		{"non-string token", http.StatusOK, `{"accessToken":42}`, ErrNoAccessToken},
		{"null token", http.StatusOK, `{"accessToken":null}`, ErrNoAccessToken},
		{"malformed json", http.StatusOK, `{"accessToken":`, nil},
		{"unauthorized", http.StatusUnauthorized, `{"message":"bad credentials"}`, nil},
		{"server error", http.StatusInternalServerError, ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newMockLoginServer(t, tt.status, tt.body)
			_, err := Login(context.Background(), srv.server.Client(), srv.url(), "a@b.co", "pw")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.status >= 400 {
				var loginErr *LoginError
				if !errors.As(err, &loginErr) || loginErr.StatusCode != tt.status {
					t.Fatalf("error = %v, want LoginError with status %d", err, tt.status)
				}
			}
		})
	}
}

func TestLoginTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/auth/login"
	srv.Close()

	client := &http.Client{Timeout: time.Second}
	if _, err := Login(context.Background(), client, url, "a@b.co", "pw"); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestLoginHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := Login(ctx, srv.Client(), srv.URL+"/auth/login", "a@b.co", "pw"); err == nil {
		t.Fatal("expected error when context expires")
	}
	if time.Since(start) > time.Second {
		t.Fatal("login ignored context deadline")
	}
}

func TestLoginErrorMessage(t *testing.T) {
	err := &LoginError{StatusCode: 401}
	if err.Error() != "login failed with status 401" {
		t.Fatalf("Error() = %q", err.Error())
	}
	err.Body = "bad credentials"
	if err.Error() != "login failed with status 401: bad credentials" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
