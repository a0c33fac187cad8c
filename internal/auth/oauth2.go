package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tokenRequestTimeout = 30 * time.Second

// OAuth2ClientCredentialsProvider obtains bearer tokens through the OAuth2
// client-credentials grant. Enterprise gateways in front of a chat
// completions endpoint commonly issue short-lived tokens this way. Tokens
// are cached until shortly before expiry, and concurrent callers that miss
// the cache share a single exchange.
type OAuth2ClientCredentialsProvider struct {
	tokenURL string
	clientID string
	secret   string
	scopes   []string
	margin   time.Duration
	client   *http.Client

	mu       sync.Mutex
	cached   string
	renewAt  time.Time
	inflight chan struct{}
}

type tokenReply struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// NewOAuth2ClientCredentialsProvider validates the endpoint and credentials
// and returns a provider. The margin is subtracted from each token's
// lifetime, so renewal happens before the token actually lapses.
func NewOAuth2ClientCredentialsProvider(tokenURL, clientID, clientSecret string, scopes []string, margin time.Duration) (*OAuth2ClientCredentialsProvider, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return nil, fmt.Errorf("oauth2: token URL is required")
	}
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("oauth2: client ID and secret are required")
	}
	return &OAuth2ClientCredentialsProvider{
		tokenURL: tokenURL,
		clientID: clientID,
		secret:   clientSecret,
		scopes:   scopes,
		margin:   margin,
		client:   &http.Client{Timeout: tokenRequestTimeout},
	}, nil
}

// Token returns the cached token while it is fresh, otherwise exchanges
// credentials for a new one. When several goroutines miss the cache at
// once, one performs the exchange and the rest wait on its result.
func (p *OAuth2ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	for {
		p.mu.Lock()
		if p.cached != "" && time.Now().Before(p.renewAt) {
			tok := p.cached
			p.mu.Unlock()
			return tok, nil
		}
		if p.inflight == nil {
			done := make(chan struct{})
			p.inflight = done
			p.mu.Unlock()
			return p.exchange(ctx, done)
		}
		wait := p.inflight
		p.mu.Unlock()

		select {
		case <-wait:
			// Loop and re-check: the exchange may have failed, in which
			// case this caller claims the next attempt.
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// exchange runs one credential exchange and publishes the outcome. A failed
// exchange leaves the cache untouched; the next Token call retries.
func (p *OAuth2ClientCredentialsProvider) exchange(ctx context.Context, done chan struct{}) (string, error) {
	tok, ttl, err := p.requestToken(ctx)

	p.mu.Lock()
	p.inflight = nil
	if err == nil {
		p.cached = tok
		p.renewAt = time.Now().Add(ttl - p.margin)
	}
	p.mu.Unlock()
	close(done)

	if err != nil {
		return "", err
	}
	return tok, nil
}

// requestToken performs the wire exchange. Credentials travel in the Basic
// auth header, never in the form body.
func (p *OAuth2ClientCredentialsProvider) requestToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	if len(p.scopes) > 0 {
		form.Set("scope", strings.Join(p.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.clientID, p.secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var reply tokenReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if reply.Error != "" {
		return "", 0, fmt.Errorf("token endpoint error: %s (%s)", reply.Error, reply.ErrorDesc)
	}
	if reply.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}
	return reply.AccessToken, time.Duration(reply.ExpiresIn) * time.Second, nil
}

// InjectHeader attaches the current token as a bearer credential.
func (p *OAuth2ClientCredentialsProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	tok, err := p.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// Close drops idle connections to the token endpoint.
func (p *OAuth2ClientCredentialsProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
