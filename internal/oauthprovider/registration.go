package oauthprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/viant/mcp-protocol/oauth2/meta"
	"golang.org/x/oauth2"

	"github.com/viant/mcp-remote/internal/authstore"
)

// registrationError wraps a non-2xx registration response, carrying the
// decoded OAuth "error" field (RFC 7591 §3.2.2) so EnsureClientConfig can
// recognize invalid_client without re-parsing the body.
type registrationError struct {
	StatusCode int
	OAuthError string
	Body       string
}

func (e *registrationError) Error() string {
	return fmt.Sprintf("oauthprovider: registration endpoint returned %d: %s", e.StatusCode, e.Body)
}

// EnsureClientConfig returns an *oauth2.Config for serverMeta, registering a
// new dynamic client (RFC 7591) against serverMeta.RegistrationEndpoint if
// none is already persisted (or supplied via --static-oauth-client-info).
func (p *Provider) EnsureClientConfig(ctx context.Context, httpClient *http.Client, serverMeta *meta.AuthorizationServerMetadata, redirectURI string) (*oauth2.Config, error) {
	info, ok := p.ClientInfo()
	if !ok {
		registered, err := p.registerRepairingInvalidClient(ctx, httpClient, serverMeta.RegistrationEndpoint, redirectURI)
		if err != nil {
			return nil, err
		}
		info = registered
	}
	return &oauth2.Config{
		ClientID:     info.ClientID,
		ClientSecret: info.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  serverMeta.AuthorizationEndpoint,
			TokenURL: serverMeta.TokenEndpoint,
		},
	}, nil
}

// registerRepairingInvalidClient registers a dynamic client, and on a
// registration rejected with invalid_client, wipes whatever client_info (and
// tokens issued under it) the Config Store still holds and retries
// registration exactly once before surfacing the failure as fatal, per the
// Config Store's repair-on-rejection lifecycle.
func (p *Provider) registerRepairingInvalidClient(ctx context.Context, httpClient *http.Client, registrationEndpoint, redirectURI string) (*authstore.ClientInfo, error) {
	info, err := p.register(ctx, httpClient, registrationEndpoint, redirectURI)
	var regErr *registrationError
	if err == nil || !errors.As(err, &regErr) || regErr.OAuthError != "invalid_client" {
		return info, err
	}
	if err := p.InvalidateCredentials(authstore.InvalidateClient); err != nil {
		return nil, fmt.Errorf("oauthprovider: invalidate stale client_info: %w", err)
	}
	return p.register(ctx, httpClient, registrationEndpoint, redirectURI)
}

func (p *Provider) register(ctx context.Context, httpClient *http.Client, registrationEndpoint, redirectURI string) (*authstore.ClientInfo, error) {
	if registrationEndpoint == "" {
		return nil, fmt.Errorf("oauthprovider: server does not support dynamic client registration and no --static-oauth-client-info was supplied")
	}
	payload, err := p.ClientMetadata(redirectURI)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauthprovider: register client: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, &registrationError{StatusCode: resp.StatusCode, OAuthError: decodeOAuthErrorCode(data), Body: string(data)}
	}
	var response map[string]interface{}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("oauthprovider: decode registration response: %w", err)
	}
	if err := p.SaveClientInformation(response); err != nil {
		return nil, err
	}
	info, _ := p.ClientInfo()
	return info, nil
}

// decodeOAuthErrorCode extracts the "error" field an OAuth error response
// body carries per RFC 6749 §5.2 / RFC 7591 §3.2.2, returning "" if body
// isn't a JSON object with that field.
func decodeOAuthErrorCode(body []byte) string {
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	return decoded.Error
}
