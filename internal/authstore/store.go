// Package authstore implements the bridge's per-server configuration store:
// dynamic client registration, tokens, the PKCE code verifier, negotiated
// scopes and the cross-process auth lock, each persisted as a discrete file
// under <root>/.mcp-auth/mcp-remote-<major>/<server-hash>/.
//
// Writes are atomic (temp file + rename), grounded on the same pattern the
// upstream token file store uses: create the parent directory, marshal to a
// temp file with owner-only permissions, then rename over the destination.
// Reads tolerate absence and treat a shape mismatch as absence rather than a
// fatal error, since the record schema may evolve across versions.
//
// The lock record is acquired by an exclusive create (O_CREATE|O_EXCL), so
// its single-leader guarantee holds only where that create is atomic; on a
// filesystem without it (some network mounts) two processes may both
// acquire the lock, and behavior there is undefined.
package authstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// SchemaVersion is the major version embedded in the storage root path.
// Bump it whenever a record's on-disk shape changes in a backward
// incompatible way so stale records are never misread as current ones.
const SchemaVersion = 1

const envConfigDir = "MCP_REMOTE_CONFIG_DIR"

const (
	fileClientInfo   = "client_info.json"
	fileTokens       = "tokens.json"
	fileCodeVerifier = "code_verifier.txt"
	fileScopes       = "scopes.json"
	fileLock         = "lock.json"
	fileServerURL    = "server_url.txt"
)

// InvalidateScope is the lattice described in the data model: all ⊇ client ⊇ tokens.
type InvalidateScope string

const (
	InvalidateTokens InvalidateScope = "tokens"
	InvalidateClient InvalidateScope = "client"
	InvalidateAll    InvalidateScope = "all"
)

// ClientInfo is the persisted dynamic client registration response.
type ClientInfo struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	Scope        string   `json:"scope,omitempty"`
}

// Tokens is the persisted token record; Expiry is always absolute.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expires_at,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// ToOAuth2 converts the persisted record into an *oauth2.Token.
func (t *Tokens) ToOAuth2() *oauth2.Token {
	if t == nil {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if t.Scope != "" {
		tok = tok.WithExtra(map[string]interface{}{"scope": t.Scope})
	}
	return tok
}

// FromOAuth2 normalizes an *oauth2.Token (whose Expiry may have been derived
// from a relative expires_in) into the persisted record shape.
func FromOAuth2(tok *oauth2.Token, scope string) *Tokens {
	return &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scope:        scope,
	}
}

// Lock is the cross-process auth-in-progress marker.
type Lock struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the Config Store for a single remote server (identified by its
// server hash). It is safe for concurrent use within one process; exclusion
// across processes is provided only for the lock record (see TryAcquireLock).
type Store struct {
	dir string
}

// Open returns the Store rooted at <configRoot>/<server-hash>, creating the
// directory if necessary, and records the server URL that produced the hash
// the first time it is written.
func Open(serverURL, serverHash string) (*Store, error) {
	dir := filepath.Join(configRoot(), serverHash)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("authstore: create %s: %w", dir, err)
	}
	s := &Store{dir: dir}
	if err := s.ensureServerURL(serverURL); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the directory this store is rooted at, mainly for diagnostics.
func (s *Store) Dir() string { return s.dir }

func configRoot() string {
	root := os.Getenv(envConfigDir)
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		root = filepath.Join(home, ".mcp-auth")
	}
	return filepath.Join(root, fmt.Sprintf("mcp-remote-%d", SchemaVersion))
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) ensureServerURL(serverURL string) error {
	p := s.path(fileServerURL)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	return writeFileAtomic(p, []byte(serverURL), 0o600)
}

// ServerURL returns the server URL recorded for this hash, if any.
func (s *Store) ServerURL() (string, bool) {
	data, err := os.ReadFile(s.path(fileServerURL))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// --- client_info -----------------------------------------------------------

func (s *Store) LoadClientInfo() (*ClientInfo, bool) {
	var v ClientInfo
	if !readJSON(s.path(fileClientInfo), &v) {
		return nil, false
	}
	if v.ClientID == "" {
		return nil, false
	}
	return &v, true
}

func (s *Store) SaveClientInfo(v *ClientInfo) error {
	return writeJSON(s.path(fileClientInfo), v)
}

// --- tokens ------------------------------------------------------------------

func (s *Store) LoadTokens() (*Tokens, bool) {
	var v Tokens
	if !readJSON(s.path(fileTokens), &v) {
		return nil, false
	}
	if v.AccessToken == "" {
		return nil, false
	}
	return &v, true
}

func (s *Store) SaveTokens(v *Tokens) error {
	return writeJSON(s.path(fileTokens), v)
}

// --- code verifier -----------------------------------------------------------

func (s *Store) LoadCodeVerifier() (string, bool) {
	data, err := os.ReadFile(s.path(fileCodeVerifier))
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (s *Store) SaveCodeVerifier(verifier string) error {
	return writeFileAtomic(s.path(fileCodeVerifier), []byte(verifier), 0o600)
}

// DeleteCodeVerifier removes the code_verifier record once it has been
// consumed by a token exchange, per the invariant that it exists if and
// only if an authorization redirect is outstanding. Absence is not an
// error.
func (s *Store) DeleteCodeVerifier() error {
	err := os.Remove(s.path(fileCodeVerifier))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// --- scopes --------------------------------------------------------------

type scopeRecord struct {
	Scope string `json:"scope"`
}

func (s *Store) LoadScope() (string, bool) {
	var v scopeRecord
	if !readJSON(s.path(fileScopes), &v) || v.Scope == "" {
		return "", false
	}
	return v.Scope, true
}

func (s *Store) SaveScope(scope string) error {
	return writeJSON(s.path(fileScopes), &scopeRecord{Scope: scope})
}

// --- lock --------------------------------------------------------------------

// TryAcquireLock attempts to create the lock file exclusively. If another
// process already holds it, acquired is false and existing describes the
// current holder (nil if the file vanished between the failed create and
// the read, e.g. raced with a concurrent release).
func (s *Store) TryAcquireLock(lock *Lock) (acquired bool, existing *Lock, err error) {
	data, merr := json.Marshal(lock)
	if merr != nil {
		return false, nil, merr
	}
	path := s.path(fileLock)
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return false, nil, err
	}
	f, ferr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if ferr == nil {
		defer f.Close()
		if _, werr := f.Write(data); werr != nil {
			return false, nil, werr
		}
		return true, nil, nil
	}
	if !errors.Is(ferr, os.ErrExist) {
		return false, nil, fmt.Errorf("authstore: acquire lock: %w", ferr)
	}
	existing, _ = s.ReadLock()
	return false, existing, nil
}

// ReadLock returns the current lock record, if any.
func (s *Store) ReadLock() (*Lock, bool) {
	var v Lock
	if !readJSON(s.path(fileLock), &v) {
		return nil, false
	}
	return &v, true
}

// UpdateLockPort rewrites the lock record's Port field in place, but only if
// the lock is still owned by ownerPID. The leader calls this once its
// listener has actually bound, since callback.Bind may have scanned upward
// from the originally requested port to resolve a collision; without this,
// followers reading the lock would poll the wrong port.
func (s *Store) UpdateLockPort(ownerPID, port int) error {
	current, ok := s.ReadLock()
	if !ok {
		return errLockOwnerMismatch
	}
	if current.PID != ownerPID {
		return errLockOwnerMismatch
	}
	if current.Port == port {
		return nil
	}
	current.Port = port
	data, err := json.Marshal(current)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(fileLock), data, 0o600)
}

// ReleaseLock removes the lock file, but only if it is still owned by
// ownerPID, so a process that lost its lock to reclamation never clobbers
// a newer owner's lock.
func (s *Store) ReleaseLock(ownerPID int) error {
	current, ok := s.ReadLock()
	if !ok {
		return nil
	}
	if current.PID != ownerPID {
		return errLockOwnerMismatch
	}
	err := os.Remove(s.path(fileLock))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

var errLockOwnerMismatch = errors.New("authstore: lock no longer owned by this process")

// --- invalidation ----------------------------------------------------------

// Invalidate removes records per the lattice documented in the data model:
// all ⊇ client ⊇ tokens. "client" also removes tokens and scopes (a
// re-registration invalidates whatever was negotiated under the old
// registration) but preserves an in-flight code verifier; "all" removes
// everything including the lock.
func (s *Store) Invalidate(scope InvalidateScope) error {
	remove := func(name string) error {
		err := os.Remove(s.path(name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := remove(fileTokens); err != nil {
		return err
	}
	if scope == InvalidateTokens {
		return nil
	}
	if err := remove(fileClientInfo); err != nil {
		return err
	}
	if err := remove(fileScopes); err != nil {
		return err
	}
	if scope == InvalidateClient {
		return nil
	}
	if err := remove(fileCodeVerifier); err != nil {
		return err
	}
	return remove(fileLock)
}

// --- helpers ----------------------------------------------------------------

func readJSON(path string, v interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		// a shape mismatch is treated as absence, not a fatal error.
		return false
	}
	return true
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o600)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
