package callback

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind_PicksFreePort(t *testing.T) {
	l, err := Bind("127.0.0.1", 0, "")
	require.NoError(t, err)
	defer l.Close()
	assert.Greater(t, l.Port(), 0)
}

func TestCallback_SuccessResolvesWait(t *testing.T) {
	l, err := Bind("127.0.0.1", 0, "expected-state")
	require.NoError(t, err)
	defer l.Close()

	url := fmt.Sprintf("http://127.0.0.1:%d/oauth/callback?code=abc123&state=expected-state", l.Port())
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result := l.Wait(ctx)
	require.NoError(t, result.Err)
	assert.Equal(t, "abc123", result.Code)
	assert.Equal(t, "expected-state", result.State)
}

func TestCallback_StateMismatchIsRejected(t *testing.T) {
	l, err := Bind("127.0.0.1", 0, "expected-state")
	require.NoError(t, err)
	defer l.Close()

	url := fmt.Sprintf("http://127.0.0.1:%d/oauth/callback?code=abc123&state=wrong-state", l.Port())
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result := l.Wait(ctx)
	assert.Error(t, result.Err)
}

func TestCallback_MissingCodeIsRejected(t *testing.T) {
	l, err := Bind("127.0.0.1", 0, "")
	require.NoError(t, err)
	defer l.Close()

	url := fmt.Sprintf("http://127.0.0.1:%d/oauth/callback?state=s", l.Port())
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallback_AuthorizationDeniedIsReportedAsError(t *testing.T) {
	l, err := Bind("127.0.0.1", 0, "")
	require.NoError(t, err)
	defer l.Close()

	url := fmt.Sprintf("http://127.0.0.1:%d/oauth/callback?error=access_denied&error_description=nope", l.Port())
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result := l.Wait(ctx)
	assert.Error(t, result.Err)
}

func TestWaitForAuth_ReturnsOKOnceResolved(t *testing.T) {
	l, err := Bind("127.0.0.1", 0, "")
	require.NoError(t, err)
	defer l.Close()

	client := &http.Client{Timeout: 3 * time.Second}
	waitURL := fmt.Sprintf("http://127.0.0.1:%d/wait-for-auth", l.Port())

	done := make(chan *http.Response, 1)
	go func() {
		resp, _ := client.Get(waitURL)
		done <- resp
	}()

	time.Sleep(50 * time.Millisecond)
	cbURL := fmt.Sprintf("http://127.0.0.1:%d/oauth/callback?code=xyz&state=", l.Port())
	_, err = http.Get(cbURL)
	require.NoError(t, err)

	select {
	case resp := <-done:
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	case <-time.After(4 * time.Second):
		t.Fatal("wait-for-auth did not resolve in time")
	}
}

func TestWait_ContextCancellationReturnsError(t *testing.T) {
	l, err := Bind("127.0.0.1", 0, "")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := l.Wait(ctx)
	assert.Error(t, result.Err)
}
