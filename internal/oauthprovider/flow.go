package oauthprovider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/viant/mcp-remote/internal/authcoordinator"
	"github.com/viant/mcp-remote/internal/callback"
)

// AuthFlow is the interface an OAuth-aware transport drives to obtain a
// fresh token when none is cached or refreshable. CoordinatedFlow is this
// package's implementation of it.
type AuthFlow interface {
	Token(ctx context.Context, cfg *oauth2.Config, scope string) (*oauth2.Token, error)
}

// CoordinatedFlow drives the interactive authorization-code + PKCE flow,
// deferring to an authcoordinator.Lease to decide whether this process
// should open the browser (leader) or simply wait for another process that
// is already doing so (follower).
type CoordinatedFlow struct {
	Provider     *Provider
	Host         string
	CallbackPort int
	Runner       Runner
	Stderr       io.Writer
}

// Token implements AuthFlow.
func (f *CoordinatedFlow) Token(ctx context.Context, cfg *oauth2.Config, scope string) (*oauth2.Token, error) {
	lease, err := authcoordinator.Coordinate(f.Provider.Store, f.CallbackPort)
	if err != nil {
		return nil, fmt.Errorf("oauthprovider: coordinate auth flow: %w", err)
	}
	defer func() { _ = lease.Release() }()

	if lease.Role == authcoordinator.Follower {
		return f.awaitFollower(ctx, lease.Port)
	}
	return f.lead(ctx, cfg, scope, lease)
}

func (f *CoordinatedFlow) lead(ctx context.Context, cfg *oauth2.Config, scope string, lease *authcoordinator.Lease) (*oauth2.Token, error) {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	if err := f.Provider.SaveCodeVerifier(verifier); err != nil {
		return nil, fmt.Errorf("oauthprovider: save code verifier: %w", err)
	}

	listener, err := callback.Bind(f.Host, lease.Port, state)
	if err != nil {
		return nil, err
	}
	defer func() { _ = listener.Close() }()

	// callback.Bind may have scanned upward from the requested port if it
	// was already taken; record the port actually bound so followers poll
	// the right one instead of the stale, originally-requested one.
	if err := lease.UpdatePort(listener.Port()); err != nil {
		return nil, fmt.Errorf("oauthprovider: record bound callback port: %w", err)
	}

	redirectURI := fmt.Sprintf("http://%s:%d/oauth/callback", f.Host, listener.Port())
	authURLOpts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
	}
	if resource := f.Provider.AuthorizeResource(); resource != "" {
		authURLOpts = append(authURLOpts, oauth2.SetAuthURLParam("resource", resource))
	}
	cfgWithRedirect := *cfg
	cfgWithRedirect.RedirectURL = redirectURI
	if scope != "" {
		cfgWithRedirect.Scopes = strings.Fields(scope)
	}
	authURL := cfgWithRedirect.AuthCodeURL(state, authURLOpts...)

	// OpenBrowser already writes the sanitized URL to f.Stderr when the
	// runner is nil or fails; printing authURL again here would both
	// duplicate that line and, if Sanitize rejected it, put the unsafe raw
	// URL on the terminal that OpenBrowser deliberately withheld.
	_ = OpenBrowser(ctx, f.Runner, f.Stderr, authURL)

	res := listener.Wait(ctx)
	if res.Err != nil {
		return nil, fmt.Errorf("oauthprovider: authorization redirect failed: %w", res.Err)
	}

	tok, err := cfgWithRedirect.Exchange(ctx, res.Code,
		oauth2.VerifierOption(verifier),
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
	)
	if err != nil {
		return nil, fmt.Errorf("oauthprovider: exchange authorization code: %w", err)
	}
	if err := f.Provider.SaveTokens(tok); err != nil {
		return nil, fmt.Errorf("oauthprovider: persist tokens: %w", err)
	}
	_ = f.Provider.DeleteCodeVerifier()
	return tok, nil
}

func (f *CoordinatedFlow) awaitFollower(ctx context.Context, leaderPort int) (*oauth2.Token, error) {
	pollURL := fmt.Sprintf("http://%s:%d/wait-for-auth?pollId=%s", f.Host, leaderPort, uuid.NewString())
	deadline := time.Now().Add(callback.IdleTimeout)
	client := &http.Client{Timeout: 30 * time.Second}
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				continue
			}
		}
		status := resp.StatusCode
		resp.Body.Close()
		switch status {
		case http.StatusOK:
			if tok, ok := f.Provider.LoadTokens(); ok {
				return tok, nil
			}
			return nil, fmt.Errorf("oauthprovider: leader reported success but no tokens were found on disk")
		case http.StatusAccepted:
			continue
		default:
			return nil, fmt.Errorf("oauthprovider: leader reported authorization failure (status %d)", status)
		}
	}
	return nil, fmt.Errorf("oauthprovider: timed out waiting for leader to complete authorization")
}

