package oauthprovider

import (
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// decodeIDTokenScope best-effort extracts a scope claim from an id_token
// extra field. The token is parsed without signature verification: by the
// time it reaches here the token response itself was already obtained over
// a TLS connection to a trusted token endpoint, so this is claims
// inspection for a missing scope hint, not an authorization decision.
func decodeIDTokenScope(tok *oauth2.Token) string {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return ""
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return ""
	}
	if scope, ok := claims["scope"].(string); ok {
		return scope
	}
	return ""
}
