package oauthprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractScope(t *testing.T) {
	cases := []struct {
		name     string
		response map[string]interface{}
		want     string
	}{
		{"scope string wins", map[string]interface{}{"scope": "read write"}, "read write"},
		{"default_scope used when scope absent", map[string]interface{}{"default_scope": "read"}, "read"},
		{"scopes array joined", map[string]interface{}{"scopes": []interface{}{"read", "write"}}, "read write"},
		{"default_scopes array joined", map[string]interface{}{"default_scopes": []interface{}{"admin"}}, "admin"},
		{"priority order: scope over default_scope", map[string]interface{}{"scope": "a", "default_scope": "b"}, "a"},
		{"priority order: default_scope over scopes array", map[string]interface{}{"default_scope": "b", "scopes": []interface{}{"c"}}, "b"},
		{"falls back to default scope when nothing present", map[string]interface{}{}, DefaultScope},
		{"non-string scope value is ignored", map[string]interface{}{"scope": 42}, DefaultScope},
		{"scopes array with non-string entries skips them", map[string]interface{}{"scopes": []interface{}{"read", 1, "write"}}, "read write"},
		{"blank scope string falls through to next field", map[string]interface{}{"scope": "  ", "default_scope": "read"}, "read"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, extractScope(c.response))
		})
	}
}
