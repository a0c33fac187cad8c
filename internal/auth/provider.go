// Package auth supplies credentials for generate calls: static API keys,
// keys read from the environment, and OAuth2 client-credentials tokens for
// gateways that put an identity provider in front of a chat completions API.
package auth

import (
	"context"
	"net/http"
)

// Provider obtains a credential and attaches it to outgoing requests.
type Provider interface {
	// Token returns a credential valid at call time. Implementations may
	// cache between calls.
	Token(ctx context.Context) (string, error)

	// InjectHeader stamps the credential onto req, normally as a bearer
	// Authorization header.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases anything the provider holds open.
	Close() error
}
