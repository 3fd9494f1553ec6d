// Package auth supplies credentials for outgoing Jira requests.
package auth

import (
	"fmt"
	"net/http"

	"jira-mcp-server/internal/common"
)

// CredentialProvider attaches authentication to an outgoing request.
// The executor calls Apply once per request and never caches the result,
// so a provider backed by a rotating token source always supplies a
// current credential.
type CredentialProvider interface {
	Apply(req *http.Request) error
}

// BasicProvider implements Jira Cloud basic auth (email + API token).
type BasicProvider struct {
	email string
	token string
}

// NewBasicProvider creates a basic-auth credential provider.
func NewBasicProvider(email, token string) *BasicProvider {
	return &BasicProvider{email: email, token: token}
}

// Apply sets the Authorization header using HTTP basic auth.
func (p *BasicProvider) Apply(req *http.Request) error {
	if p.email == "" || p.token == "" {
		return fmt.Errorf("basic credentials not configured")
	}
	req.SetBasicAuth(p.email, p.token)
	return nil
}

// BearerProvider implements bearer-token auth (OAuth access token or PAT).
type BearerProvider struct {
	token string
}

// NewBearerProvider creates a bearer-token credential provider.
func NewBearerProvider(token string) *BearerProvider {
	return &BearerProvider{token: token}
}

// Apply sets the Authorization header with the bearer token.
func (p *BearerProvider) Apply(req *http.Request) error {
	if p.token == "" {
		return fmt.Errorf("bearer token not configured")
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	return nil
}

// FromConfig builds the credential provider selected by the Jira config.
func FromConfig(cfg common.JiraConfig) (CredentialProvider, error) {
	switch cfg.AuthType {
	case "basic", "":
		return NewBasicProvider(cfg.Email, cfg.APIToken), nil
	case "bearer":
		return NewBearerProvider(cfg.APIToken), nil
	default:
		return nil, fmt.Errorf("unsupported auth_type %q", cfg.AuthType)
	}
}
