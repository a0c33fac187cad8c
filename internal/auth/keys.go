package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// StaticTokenProvider wraps a key given literally in the suite file or on
// the command line.
type StaticTokenProvider struct {
	key string
}

// NewStaticTokenProvider returns a provider around a fixed key.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{key: token}
}

// Token returns the fixed key.
func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	return p.key, nil
}

// InjectHeader sets the key as a bearer credential.
func (p *StaticTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+p.key)
	return nil
}

func (p *StaticTokenProvider) Close() error { return nil }

// EnvTokenProvider resolves the key from a named environment variable on
// every call. A key rotated mid-run is picked up without a restart.
type EnvTokenProvider struct {
	name string
}

// NewEnvTokenProvider returns a provider reading envVar. The variable
// itself is not checked until the first Token call.
func NewEnvTokenProvider(envVar string) (*EnvTokenProvider, error) {
	if strings.TrimSpace(envVar) == "" {
		return nil, fmt.Errorf("environment variable name is empty")
	}
	return &EnvTokenProvider{name: envVar}, nil
}

// Token reads the variable. Unset or empty is an error.
func (p *EnvTokenProvider) Token(ctx context.Context) (string, error) {
	key := os.Getenv(p.name)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", p.name)
	}
	return key, nil
}

// InjectHeader sets the current key as a bearer credential.
func (p *EnvTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	key, err := p.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	return nil
}

func (p *EnvTokenProvider) Close() error { return nil }
