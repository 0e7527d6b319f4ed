// Package transport implements an http.RoundTripper that performs the OAuth 2.1
// [Protected Resource Metadata](https://www.rfc-editor.org/rfc/rfc9728) discovery,
// token acquisition and automatic request retry logic required by MCP when a
// server challenges the client with `401 Unauthorized`.
//
// It is wired as the http.Client transport behind the remote transports the
// Transport Selector constructs, so the selector never has to know an
// authorization challenge happened underneath it.
package transport
