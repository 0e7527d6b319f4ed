// Package oauthprovider implements the callback contract an OAuth-aware
// transport drives to obtain bearer credentials for a remote MCP server:
// client registration, token and PKCE-verifier persistence, scope
// negotiation and the redirect-to-browser step. It is the bridge-specific,
// cross-process analog of a single-process interactive auth flow: instead
// of owning a browser-driven exchange end to end, it defers the "who should
// open the browser" decision to an authcoordinator.Lease and the "where
// does the redirect land" decision to a callback.Listener.
package oauthprovider

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/viant/mcp-remote/internal/authstore"
)

// StaticConfig carries operator-supplied overrides for dynamic client
// registration (--static-oauth-client-metadata / --static-oauth-client-info),
// and the scope/resource the operator wants authorized
// (--oauth-scopes / --authorize-resource).
type StaticConfig struct {
	ClientMetadata    json.RawMessage
	ClientInfo        json.RawMessage
	Scopes            string
	AuthorizeResource string
}

// Provider is the OAuth Provider for a single remote server.
type Provider struct {
	Store        *authstore.Store
	Static       StaticConfig
	CallbackHost string
	ServerName   string
}

// New builds a Provider backed by store.
func New(store *authstore.Store, static StaticConfig, callbackHost string) *Provider {
	if callbackHost == "" {
		callbackHost = "localhost"
	}
	return &Provider{Store: store, Static: static, CallbackHost: callbackHost}
}

// ClientMetadata returns the dynamic-registration request payload. Its scope
// field is the scope this provider currently wants to negotiate (see Scope).
// redirectURI must be the exact loopback URI the Callback Listener is bound
// to: the spec requires the listener's bound port to always win over any
// operator-declared redirect_uris, since only the process that owns the
// listener can actually receive the redirect.
func (p *Provider) ClientMetadata(redirectURI string) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"redirect_uris":              []string{redirectURI},
		"token_endpoint_auth_method": "none",
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"scope":                      p.Scope(),
	}
	if p.ServerName != "" {
		payload["client_name"] = p.ServerName
	}
	if len(p.Static.ClientMetadata) > 0 {
		var overrides map[string]interface{}
		if err := json.Unmarshal(p.Static.ClientMetadata, &overrides); err != nil {
			return nil, fmt.Errorf("oauthprovider: invalid --static-oauth-client-metadata: %w", err)
		}
		for k, v := range overrides {
			if k == "redirect_uris" {
				// accepted but ignored: the listener's bound loopback URI always wins.
				continue
			}
			payload[k] = v
		}
	}
	return payload, nil
}

// Scope returns the scope this provider wants to negotiate, in priority
// order: an explicit operator override, the scope recorded from the last
// successful registration, or the default.
func (p *Provider) Scope() string {
	if p.Static.Scopes != "" {
		return p.Static.Scopes
	}
	if scope, ok := p.Store.LoadScope(); ok {
		return scope
	}
	return DefaultScope
}

// DefaultScope is used when neither an operator override nor a prior
// registration response supplied one.
const DefaultScope = "openid email profile"

// ClientInfo returns the persisted (or operator-supplied static) client
// registration, if one already exists.
func (p *Provider) ClientInfo() (*authstore.ClientInfo, bool) {
	if len(p.Static.ClientInfo) > 0 {
		var info authstore.ClientInfo
		if err := json.Unmarshal(p.Static.ClientInfo, &info); err == nil && info.ClientID != "" {
			return &info, true
		}
	}
	return p.Store.LoadClientInfo()
}

// SaveClientInformation persists a dynamic-registration response, extracting
// its negotiated scope per the priority order in extractScope, and
// recording that scope separately so it survives a later client_info
// rewrite.
func (p *Provider) SaveClientInformation(response map[string]interface{}) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	var info authstore.ClientInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("oauthprovider: decode registration response: %w", err)
	}
	scope := extractScope(response)
	info.Scope = scope
	if err := p.Store.SaveClientInfo(&info); err != nil {
		return err
	}
	return p.Store.SaveScope(scope)
}

// LoadTokens returns the persisted token, if any, converted to *oauth2.Token.
func (p *Provider) LoadTokens() (*oauth2.Token, bool) {
	rec, ok := p.Store.LoadTokens()
	if !ok {
		return nil, false
	}
	return rec.ToOAuth2(), true
}

// SaveTokens persists tok, best-effort decoding any id_token extra field to
// recover a scope claim when the token response itself omitted one.
func (p *Provider) SaveTokens(tok *oauth2.Token) error {
	scope := ""
	if v := tok.Extra("scope"); v != nil {
		scope, _ = v.(string)
	}
	if scope == "" {
		scope = decodeIDTokenScope(tok)
	}
	if scope == "" {
		scope = p.Scope()
	}
	return p.Store.SaveTokens(authstore.FromOAuth2(tok, scope))
}

// SaveCodeVerifier / LoadCodeVerifier / DeleteCodeVerifier pass through to
// the Config Store.
func (p *Provider) SaveCodeVerifier(v string) error  { return p.Store.SaveCodeVerifier(v) }
func (p *Provider) LoadCodeVerifier() (string, bool) { return p.Store.LoadCodeVerifier() }
func (p *Provider) DeleteCodeVerifier() error        { return p.Store.DeleteCodeVerifier() }

// InvalidateCredentials removes records per the lattice described in the
// data model (§3): all ⊇ client ⊇ tokens.
func (p *Provider) InvalidateCredentials(scope authstore.InvalidateScope) error {
	return p.Store.Invalidate(scope)
}

// AuthorizeResource returns the resource indicator (RFC 8707) to attach to
// the authorization request, if the operator configured one.
func (p *Provider) AuthorizeResource() string { return p.Static.AuthorizeResource }
