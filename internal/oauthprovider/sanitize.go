package oauthprovider

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hostPattern = regexp.MustCompile(`^[A-Za-z0-9.\-]+$`)

// Sanitize validates and re-encodes a URL before it is handed to the system
// browser opener. It rejects anything that is not http(s), and any host
// containing characters outside [A-Za-z0-9.-]. The path, the fragment and
// each query key and value (keeping the "&" and "=" that separate them) are
// then run through an opaque percent-encoder on top of whatever escaping
// url.Parse itself already performed, which means a literal space (encoded
// once by Go's own path escaper into %20) comes out re-encoded as %2520:
// the bridge never assumes a single decode step is enough to recover a safe
// literal, it treats the escaped form itself as the opaque payload to carry
// to the browser.
func Sanitize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("oauthprovider: invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("oauthprovider: unsupported URL scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" || !hostPattern.MatchString(host) {
		return "", fmt.Errorf("oauthprovider: unsafe or empty host %q", host)
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(host)
	if port := u.Port(); port != "" {
		b.WriteByte(':')
		b.WriteString(port)
	}
	b.WriteString(escapeOpaque(u.EscapedPath()))
	if u.RawQuery != "" {
		b.WriteByte('?')
		pairs := strings.Split(u.RawQuery, "&")
		for i, pair := range pairs {
			kv := strings.SplitN(pair, "=", 2)
			for j := range kv {
				kv[j] = escapeOpaque(kv[j])
			}
			pairs[i] = strings.Join(kv, "=")
		}
		b.WriteString(strings.Join(pairs, "&"))
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(escapeOpaque(u.EscapedFragment()))
	}
	return b.String(), nil
}

// escapeOpaque percent-encodes every byte that is not alphanumeric, one of
// "-_.~", or a path separator "/". Crucially this re-escapes any "%"
// already present in s, since s may itself be output from an earlier
// escaping pass.
func escapeOpaque(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '~' || c == '/':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}
