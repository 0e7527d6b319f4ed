package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"

	"github.com/viant/mcp-protocol/oauth2/meta"
	"golang.org/x/oauth2"

	"github.com/viant/mcp-remote/internal/oauthprovider"
)

// AuthError wraps a failure that occurred while satisfying a 401 challenge
// (metadata discovery, registration, token exchange), as opposed to a plain
// network/transport failure. Callers that need to distinguish the two — the
// transport selector's bounded auth-retry policy, chiefly — can use
// errors.As against this type instead of matching on error text.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string { return "auth: " + e.Cause.Error() }
func (e *AuthError) Unwrap() error { return e.Cause }

// RoundTripper probes a request unauthenticated, and on a 401 drives
// protected-resource-metadata discovery, dynamic client registration (or
// reuse), token caching/refresh, and, failing all of those, the interactive
// AuthFlow, before replaying the original request with a Bearer header.
type RoundTripper struct {
	provider     *oauthprovider.Provider
	authFlow     oauthprovider.AuthFlow
	callbackHost string
	callbackPort int
	transport    http.RoundTripper
	mux          sync.Mutex
}

func New(options ...Option) (*RoundTripper, error) {
	ret := &RoundTripper{transport: http.DefaultTransport, callbackHost: "localhost", callbackPort: 3334}
	for _, opt := range options {
		opt(ret)
	}
	if ret.provider == nil {
		return nil, fmt.Errorf("transport: a Provider is required")
	}
	if ret.authFlow == nil {
		return nil, fmt.Errorf("transport: an AuthFlow is required")
	}
	return ret, nil
}

// Provider exposes the underlying OAuth Provider, mainly so callers can
// invalidate credentials after a persistent authorization failure.
func (r *RoundTripper) Provider() *oauthprovider.Provider { return r.provider }

func (r *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	probe := clone(req)
	resp, err := r.transport.RoundTrip(probe)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	ctx := req.Context()
	tok, err := r.Token(ctx, resp)
	if err != nil {
		return nil, &AuthError{Cause: err}
	}

	retry := clone(req)
	retry.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return r.transport.RoundTrip(retry)
}

// Token resolves a bearer token for the protected resource that issued resp,
// reusing a cached valid or refreshable token before falling back to the
// interactive flow.
func (r *RoundTripper) Token(ctx context.Context, resp *http.Response) (*oauth2.Token, error) {
	r.mux.Lock()
	defer r.mux.Unlock()

	protectedResourceMetadataURL, err := parseAuthenticateHeader(resp)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Transport: r.transport}
	resourceMetadata, err := meta.FetchProtectedResourceMetadata(ctx, protectedResourceMetadataURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("transport: fetch protected resource metadata: %w", err)
	}
	return r.ProtectedResourceToken(ctx, resourceMetadata, r.provider.Scope())
}

// ProtectedResourceToken resolves a bearer token for resourceMetadata,
// registering or reusing client configuration as needed.
func (r *RoundTripper) ProtectedResourceToken(ctx context.Context, resourceMetadata *meta.ProtectedResourceMetadata, scope string) (*oauth2.Token, error) {
	if len(resourceMetadata.AuthorizationServers) == 0 {
		return nil, fmt.Errorf("transport: protected resource metadata lists no authorization servers")
	}
	httpClient := &http.Client{Transport: r.transport}
	issuer := resourceMetadata.AuthorizationServers[rand.Intn(len(resourceMetadata.AuthorizationServers))]
	serverMeta, err := meta.FetchAuthorizationServerMetadata(ctx, issuer, httpClient)
	if err != nil {
		return nil, fmt.Errorf("transport: fetch authorization server metadata: %w", err)
	}

	if cached, ok := r.provider.LoadTokens(); ok {
		if cached.Valid() {
			return cached, nil
		}
		if cached.RefreshToken != "" {
			if refreshed := r.refresh(ctx, serverMeta, cached); refreshed != nil {
				_ = r.provider.SaveTokens(refreshed)
				return refreshed, nil
			}
		}
	}

	redirectURI := fmt.Sprintf("http://%s:%d/oauth/callback", r.callbackHost, r.callbackPort)
	cfg, err := r.provider.EnsureClientConfig(ctx, httpClient, serverMeta, redirectURI)
	if err != nil {
		return nil, err
	}
	tok, err := r.authFlow.Token(ctx, cfg, scope)
	if err != nil {
		return nil, err
	}
	if err := r.provider.SaveTokens(tok); err != nil {
		return nil, fmt.Errorf("transport: persist tokens: %w", err)
	}
	return tok, nil
}

func (r *RoundTripper) refresh(ctx context.Context, serverMeta *meta.AuthorizationServerMetadata, cached *oauth2.Token) *oauth2.Token {
	info, ok := r.provider.ClientInfo()
	if !ok {
		return nil
	}
	cfg := &oauth2.Config{
		ClientID:     info.ClientID,
		ClientSecret: info.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  serverMeta.AuthorizationEndpoint,
			TokenURL: serverMeta.TokenEndpoint,
		},
	}
	refreshed, err := cfg.TokenSource(ctx, cached).Token()
	if err != nil {
		return nil
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cached.RefreshToken
	}
	return refreshed
}
