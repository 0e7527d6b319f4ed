package oauthprovider

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	code int
	err  error
}

func (f fakeRunner) Run(ctx context.Context, command string) (string, int, error) {
	return "", f.code, f.err
}

func TestOpenBrowser_RejectsUnsafeURLWithoutWritingItToFallback(t *testing.T) {
	var out bytes.Buffer
	err := OpenBrowser(context.Background(), fakeRunner{}, &out, "javascript:alert(1)//evil?state=abc")
	require.Error(t, err)
	assert.Empty(t, out.String(), "an unsafe URL Sanitize rejected must never reach the fallback writer")
}

func TestOpenBrowser_PrintsSanitizedURLOnceWhenRunnerFails(t *testing.T) {
	var out bytes.Buffer
	err := OpenBrowser(context.Background(), fakeRunner{code: 1}, &out, "https://example.com/authorize?state=abc def")
	require.Error(t, err)
	printed := out.String()
	assert.Equal(t, 1, strings.Count(printed, "https://example.com"), "the fallback URL must be printed exactly once")
	lines := strings.Split(strings.TrimSpace(printed), "\n")
	assert.NotContains(t, lines[len(lines)-1], " ", "the printed URL must be the sanitized, re-escaped form")
}

func TestOpenBrowser_PrintsSanitizedURLOnceWhenRunnerIsNil(t *testing.T) {
	var out bytes.Buffer
	err := OpenBrowser(context.Background(), nil, &out, "https://example.com/authorize?state=abc")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.String(), "https://example.com"))
}
