package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandLineArgs_MinimalServerURL(t *testing.T) {
	args, err := ParseCommandLineArgs([]string{"https://example.com/mcp"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/mcp", args.ServerURL)
	assert.Equal(t, 0, args.CallbackPort)
	assert.Equal(t, defaultHost, args.Host)
	assert.Equal(t, defaultTransportStrategy, args.TransportStrategy)
	assert.Empty(t, args.Headers)
	assert.Empty(t, args.IgnoredTools)
}

func TestParseCommandLineArgs_NumericSecondPositionalIsPort(t *testing.T) {
	args, err := ParseCommandLineArgs([]string{"https://example.com/mcp", "8099"})
	require.NoError(t, err)
	assert.Equal(t, 8099, args.CallbackPort)
}

func TestParseCommandLineArgs_NonNumericSecondPositionalIsIgnored(t *testing.T) {
	args, err := ParseCommandLineArgs([]string{"https://example.com/mcp", "not-a-port"})
	require.NoError(t, err)
	assert.Equal(t, 0, args.CallbackPort)
}

func TestParseCommandLineArgs_MissingServerURLIsRejected(t *testing.T) {
	_, err := ParseCommandLineArgs([]string{"--host", "0.0.0.0"})
	assert.Error(t, err)
}

func TestParseCommandLineArgs_UnknownTransportFallsBackToDefault(t *testing.T) {
	args, err := ParseCommandLineArgs([]string{"https://example.com/mcp", "--transport", "carrier-pigeon"})
	require.NoError(t, err)
	assert.Equal(t, defaultTransportStrategy, args.TransportStrategy)
}

func TestParseCommandLineArgs_KnownTransportIsHonored(t *testing.T) {
	args, err := ParseCommandLineArgs([]string{"https://example.com/mcp", "--transport", "sse-only"})
	require.NoError(t, err)
	assert.Equal(t, "sse-only", args.TransportStrategy)
}

func TestParseCommandLineArgs_HeadersAreCollectedAndMalformedOnesDiscarded(t *testing.T) {
	args, err := ParseCommandLineArgs([]string{
		"https://example.com/mcp",
		"--header", "X-Api-Key: secret",
		"--header", "malformed-no-colon",
		"--header", "Authorization: Bearer abc",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"X-Api-Key": " secret", "Authorization": " Bearer abc"}, args.Headers)
}

func TestParseCommandLineArgs_IgnoreToolIsRepeatable(t *testing.T) {
	args, err := ParseCommandLineArgs([]string{
		"https://example.com/mcp",
		"--ignore-tool", "dangerous-delete",
		"--ignore-tool", "dangerous-format",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"dangerous-delete", "dangerous-format"}, args.IgnoredTools)
}

func TestParseCommandLineArgs_AllowHTTPRequiredForNonLoopbackPlaintext(t *testing.T) {
	_, err := ParseCommandLineArgs([]string{"http://remote.example.com/mcp"})
	assert.Error(t, err)

	args, err := ParseCommandLineArgs([]string{"http://remote.example.com/mcp", "--allow-http"})
	require.NoError(t, err)
	assert.True(t, args.AllowHTTP)
}

func TestParseCommandLineArgs_LoopbackPlaintextNeedsNoAllowFlag(t *testing.T) {
	_, err := ParseCommandLineArgs([]string{"http://localhost:9000/mcp"})
	assert.NoError(t, err)

	_, err = ParseCommandLineArgs([]string{"http://127.0.0.1:9000/mcp"})
	assert.NoError(t, err)
}

func TestParseCommandLineArgs_StaticOAuthAndScopeFlags(t *testing.T) {
	args, err := ParseCommandLineArgs([]string{
		"https://example.com/mcp",
		"--static-oauth-client-metadata", `{"client_name":"bridge"}`,
		"--static-oauth-client-info", `{"client_id":"abc"}`,
		"--oauth-scopes", "read write",
		"--authorize-resource", "https://example.com/resource",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"client_name":"bridge"}`, args.StaticClientMetadata)
	assert.Equal(t, `{"client_id":"abc"}`, args.StaticClientInfo)
	assert.Equal(t, "read write", args.OAuthScopes)
	assert.Equal(t, "https://example.com/resource", args.AuthorizeResource)
}

func TestParseCommandLineArgs_TrailingFlagWithoutValueIsIgnored(t *testing.T) {
	args, err := ParseCommandLineArgs([]string{"https://example.com/mcp", "--header"})
	require.NoError(t, err)
	assert.Empty(t, args.Headers)
}
