package transport

import (
	"github.com/viant/mcp-remote/internal/oauthprovider"
)

type Option func(*RoundTripper)

// WithProvider sets the OAuth Provider backing client registration, token
// persistence and the PKCE verifier.
func WithProvider(provider *oauthprovider.Provider) Option {
	return func(t *RoundTripper) {
		t.provider = provider
	}
}

// WithAuthFlow sets the flow used to obtain a fresh token when no cached,
// refreshable one is available. It is required: New returns an error when no
// AuthFlow is set.
func WithAuthFlow(flow oauthprovider.AuthFlow) Option {
	return func(t *RoundTripper) {
		t.authFlow = flow
	}
}

// WithCallback sets the loopback host and desired port that dynamic client
// registration advertises as its redirect_uri. It must match the port the
// Auth Coordinator asks the Callback Listener to bind, or a strict
// authorization server will reject the eventual redirect as a mismatch.
func WithCallback(host string, port int) Option {
	return func(t *RoundTripper) {
		t.callbackHost = host
		t.callbackPort = port
	}
}
