// Package bridge implements the local process that bridges a stdio-speaking
// MCP client to a remote MCP server reachable over HTTP or SSE, obtaining and
// refreshing OAuth 2.1 bearer credentials as needed.
//
// Most end users interact with one of the two executables built from this
// package (cmd/mcp-remote-proxy, cmd/mcp-remote-client); the source lives
// here so both can share the same flag parsing, config store and transport
// selection logic.
package bridge
