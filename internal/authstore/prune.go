package authstore

import (
	"os"
	"path/filepath"
)

// Prune removes per-server directories whose recorded server_url no longer
// matches the URL currently configured for that hash. It is invoked once at
// bridge startup; a hash collision (same hash, different URL) is treated as
// staleness, never as a fatal error.
func Prune(knownHashToURL map[string]string) error {
	root := configRoot()
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		hash := e.Name()
		wantURL, known := knownHashToURL[hash]
		if !known {
			continue
		}
		s := &Store{dir: filepath.Join(root, hash)}
		gotURL, ok := s.ServerURL()
		if ok && gotURL == wantURL {
			continue
		}
		if !ok {
			continue
		}
		_ = s.Invalidate(InvalidateAll)
	}
	return nil
}
