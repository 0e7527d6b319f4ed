// Package serverid derives stable, filesystem-safe identifiers for a remote
// MCP server from its URL, used as the storage and coordination key for
// everything under the bridge's per-server configuration directory.
package serverid

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/viant/afs/url"
)

// Hash returns a stable hex digest of the server URL. The URL is first
// reduced to its scheme+host+path base (via afs/url.Base) so that
// query-string or fragment noise that does not change server identity does
// not change the hash.
func Hash(serverURL string) string {
	base, _ := url.Base(serverURL, "https")
	if base == "" {
		base = serverURL
	}
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}
