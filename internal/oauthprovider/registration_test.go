package oauthprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/mcp-protocol/oauth2/meta"
	"github.com/viant/mcp-remote/internal/authstore"
)

func openProvider(t *testing.T) *Provider {
	t.Helper()
	t.Setenv("MCP_REMOTE_CONFIG_DIR", t.TempDir())
	store, err := authstore.Open("https://example.com/mcp", "reg-hash")
	require.NoError(t, err)
	return New(store, StaticConfig{}, "localhost")
}

func TestEnsureClientConfig_RegistersWhenNoClientInfoIsStored(t *testing.T) {
	p := openProvider(t)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"client_id": "cid", "client_secret": "secret"})
	}))
	defer srv.Close()

	cfg, err := p.EnsureClientConfig(context.Background(), srv.Client(), &meta.AuthorizationServerMetadata{RegistrationEndpoint: srv.URL}, "http://localhost:1/cb")
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, 1, calls)
}

func TestEnsureClientConfig_ReusesStoredClientInfoWithoutRegistering(t *testing.T) {
	p := openProvider(t)
	require.NoError(t, p.Store.SaveClientInfo(&authstore.ClientInfo{ClientID: "cached"}))

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg, err := p.EnsureClientConfig(context.Background(), srv.Client(), &meta.AuthorizationServerMetadata{RegistrationEndpoint: srv.URL}, "http://localhost:1/cb")
	require.NoError(t, err)
	assert.Equal(t, "cached", cfg.ClientID)
	assert.Equal(t, 0, calls)
}

func TestEnsureClientConfig_RepairsOnceOnInvalidClientThenSucceeds(t *testing.T) {
	p := openProvider(t)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_client"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"client_id": "new-cid"})
	}))
	defer srv.Close()

	cfg, err := p.EnsureClientConfig(context.Background(), srv.Client(), &meta.AuthorizationServerMetadata{RegistrationEndpoint: srv.URL}, "http://localhost:1/cb")
	require.NoError(t, err)
	assert.Equal(t, "new-cid", cfg.ClientID)
	assert.Equal(t, 2, calls)
}

func TestEnsureClientConfig_InvalidClientTwiceIsFatal(t *testing.T) {
	p := openProvider(t)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_client"})
	}))
	defer srv.Close()

	_, err := p.EnsureClientConfig(context.Background(), srv.Client(), &meta.AuthorizationServerMetadata{RegistrationEndpoint: srv.URL}, "http://localhost:1/cb")
	assert.Error(t, err)
	assert.Equal(t, 2, calls, "a second invalid_client must not trigger a third attempt")
}

func TestEnsureClientConfig_OtherRegistrationErrorIsNotRetried(t *testing.T) {
	p := openProvider(t)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "server_error"})
	}))
	defer srv.Close()

	_, err := p.EnsureClientConfig(context.Background(), srv.Client(), &meta.AuthorizationServerMetadata{RegistrationEndpoint: srv.URL}, "http://localhost:1/cb")
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "a non-invalid_client rejection must not be retried")
}

func TestEnsureClientConfig_RepairInvalidatesLeftoverTokensFromAPriorClient(t *testing.T) {
	p := openProvider(t)
	// client_info is absent (so EnsureClientConfig takes the registration
	// path below) but a token issued under some earlier registration is
	// still on disk; the repair step must not leave it behind.
	require.NoError(t, p.Store.SaveTokens(&authstore.Tokens{AccessToken: "stale-token"}))

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_client"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"client_id": "fresh-cid"})
	}))
	defer srv.Close()

	cfg, err := p.EnsureClientConfig(context.Background(), srv.Client(), &meta.AuthorizationServerMetadata{RegistrationEndpoint: srv.URL}, "http://localhost:1/cb")
	require.NoError(t, err)
	assert.Equal(t, "fresh-cid", cfg.ClientID)

	_, ok := p.Store.LoadTokens()
	assert.False(t, ok, "any token left over from before the repair must not survive it")
}
