package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// tokenEndpoint is a stub OAuth2 token endpoint. The reply can be swapped
// mid-test; every exchange bumps calls.
type tokenEndpoint struct {
	srv   *httptest.Server
	calls atomic.Int32

	mu     sync.Mutex
	status int
	body   string
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()
	ep := &tokenEndpoint{status: http.StatusOK}
	ep.issue("tok-1", 3600)
	ep.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep.calls.Add(1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ep.mu.Lock()
		status, body := ep.status, ep.body
		ep.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(ep.srv.Close)
	return ep
}

func (ep *tokenEndpoint) reply(status int, body string) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.status = status
	ep.body = body
}

func (ep *tokenEndpoint) issue(token string, expiresIn int) {
	b, _ := json.Marshal(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
	ep.reply(http.StatusOK, string(b))
}

func newTestProvider(t *testing.T, ep *tokenEndpoint, margin time.Duration) *OAuth2ClientCredentialsProvider {
	t.Helper()
	p, err := NewOAuth2ClientCredentialsProvider(ep.srv.URL, "bench-client", "bench-secret", nil, margin)
	if err != nil {
		t.Fatalf("NewOAuth2ClientCredentialsProvider: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestOAuth2TokenCachedAcrossCalls(t *testing.T) {
	ep := newTokenEndpoint(t)
	p := newTestProvider(t, ep, 0)

	ctx := context.Background()
	first, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if first != "tok-1" {
		t.Errorf("Token = %q, want tok-1", first)
	}

	second, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token (cached): %v", err)
	}
	if second != first {
		t.Errorf("cached token = %q, want %q", second, first)
	}
	if got := ep.calls.Load(); got != 1 {
		t.Errorf("exchanges = %d, want 1", got)
	}
}

func TestOAuth2CredentialsTravelInBasicAuth(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	p, err := NewOAuth2ClientCredentialsProvider(srv.URL, "bench-client", "bench-secret",
		[]string{"models.read", "models.generate"}, 0)
	if err != nil {
		t.Fatalf("NewOAuth2ClientCredentialsProvider: %v", err)
	}
	defer p.Close()

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}

	creds, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(gotAuth, "Basic "))
	if err != nil {
		t.Fatalf("decode Basic auth %q: %v", gotAuth, err)
	}
	if string(creds) != "bench-client:bench-secret" {
		t.Errorf("Basic auth credentials = %q", creds)
	}
	if strings.Contains(gotBody, "client_secret") || strings.Contains(gotBody, "client_id") {
		t.Errorf("credentials leaked into form body: %q", gotBody)
	}
	if !strings.Contains(gotBody, "grant_type=client_credentials") {
		t.Errorf("form body missing grant_type: %q", gotBody)
	}
	if !strings.Contains(gotBody, "scope=models.read+models.generate") {
		t.Errorf("form body missing scopes: %q", gotBody)
	}
}

func TestOAuth2RenewsBeforeExpiry(t *testing.T) {
	ep := newTokenEndpoint(t)
	ep.issue("short-lived", 2)
	p := newTestProvider(t, ep, time.Second)

	ctx := context.Background()
	if tok, err := p.Token(ctx); err != nil || tok != "short-lived" {
		t.Fatalf("Token = %q, %v; want short-lived", tok, err)
	}

	// Past the renewal point (2s lifetime minus 1s margin) but well before
	// the token itself expires.
	time.Sleep(1200 * time.Millisecond)
	ep.issue("renewed", 3600)

	tok, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token after renewal point: %v", err)
	}
	if tok != "renewed" {
		t.Errorf("Token = %q, want renewed", tok)
	}
	if got := ep.calls.Load(); got != 2 {
		t.Errorf("exchanges = %d, want 2", got)
	}
}

func TestOAuth2FailedExchangeDoesNotPoisonCache(t *testing.T) {
	ep := newTokenEndpoint(t)
	ep.reply(http.StatusInternalServerError, `{}`)
	p := newTestProvider(t, ep, 0)

	ctx := context.Background()
	if _, err := p.Token(ctx); err == nil {
		t.Fatal("Token: want error for 500 reply")
	}

	ep.issue("tok-1", 3600)
	tok, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token after recovery: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("Token = %q, want tok-1", tok)
	}
	if got := ep.calls.Load(); got != 2 {
		t.Errorf("exchanges = %d, want 2", got)
	}
}

func TestOAuth2ErrorReplies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http error status", http.StatusUnauthorized, `{"error":"invalid_client"}`,
			"token endpoint returned status 401"},
		{"error in reply body", http.StatusOK, `{"error":"invalid_scope","error_description":"Requested scope is invalid"}`,
			"token endpoint error: invalid_scope (Requested scope is invalid)"},
		{"missing access token", http.StatusOK, `{"token_type":"Bearer"}`,
			"missing access_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := newTokenEndpoint(t)
			ep.reply(tt.status, tt.body)
			p := newTestProvider(t, ep, 0)

			_, err := p.Token(context.Background())
			if err == nil {
				t.Fatal("Token: want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Token error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestOAuth2ConcurrentCallersShareOneExchange(t *testing.T) {
	ep := newTokenEndpoint(t)
	p := newTestProvider(t, ep, 0)

	const callers = 50
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			tok, err := p.Token(context.Background())
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	if got := ep.calls.Load(); got != 1 {
		t.Errorf("exchanges = %d, want 1 for %d concurrent callers", got, callers)
	}
	for i, tok := range tokens {
		if tok != "tok-1" {
			t.Errorf("caller %d got %q, want tok-1", i, tok)
		}
	}
}

func TestOAuth2WaiterHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	p, err := NewOAuth2ClientCredentialsProvider(srv.URL, "bench-client", "bench-secret", nil, 0)
	if err != nil {
		t.Fatalf("NewOAuth2ClientCredentialsProvider: %v", err)
	}
	defer p.Close()

	leaderDone := make(chan error, 1)
	go func() {
		_, err := p.Token(context.Background())
		leaderDone <- err
	}()

	// Give the leader time to claim the exchange, then join as a waiter
	// with a deadline that fires while the endpoint is still blocked.
	time.Sleep(100 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := p.Token(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiter error = %v, want context.DeadlineExceeded", err)
	}

	close(release)
	if err := <-leaderDone; err != nil {
		t.Errorf("leader error = %v", err)
	}
}

func TestOAuth2ConstructorValidation(t *testing.T) {
	if _, err := NewOAuth2ClientCredentialsProvider("", "id", "secret", nil, 0); err == nil {
		t.Error("want error for empty token URL")
	}
	if _, err := NewOAuth2ClientCredentialsProvider("https://auth.example.com/token", "", "secret", nil, 0); err == nil {
		t.Error("want error for empty client ID")
	}
	if _, err := NewOAuth2ClientCredentialsProvider("https://auth.example.com/token", "id", "", nil, 0); err == nil {
		t.Error("want error for empty client secret")
	}
}

func TestOAuth2ExpiredContext(t *testing.T) {
	ep := newTokenEndpoint(t)
	p := newTestProvider(t, ep, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Token(ctx); err == nil {
		t.Fatal("Token: want error for cancelled context")
	}
}
