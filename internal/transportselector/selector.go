// Package transportselector decides which remote wire transport a bridge
// session uses — HTTP-stream or SSE — per an operator policy, retries failed
// attempts with exponential backoff, and bounds how many times a single
// attempt may loop back through the authorization flow before giving up.
//
// Once an attempt succeeds the chosen transport is locked in for the life of
// the session: a later reconnect (after a dropped connection) re-enters the
// state machine from the top rather than oscillating between transports on
// an otherwise healthy link.
package transportselector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viant/jsonrpc/transport"
	"github.com/viant/jsonrpc/transport/client/http/sse"
	"github.com/viant/jsonrpc/transport/client/http/streamable"
	mcpclient "github.com/viant/mcp/client"
	pclient "github.com/viant/mcp-protocol/client"

	authtransport "github.com/viant/mcp-remote/client/auth/transport"
)

// Strategy is the operator policy over which wire transport to prefer.
type Strategy string

const (
	HTTPOnly  Strategy = "http-only"
	SSEOnly   Strategy = "sse-only"
	HTTPFirst Strategy = "http-first"
	SSEFirst  Strategy = "sse-first"
)

// Parse maps an operator-supplied --transport value to a Strategy, falling
// back to HTTPFirst for anything unrecognized (per the CLI's "unknown values
// fall back to the default silently" rule).
func Parse(value string) Strategy {
	switch Strategy(value) {
	case HTTPOnly, SSEOnly, HTTPFirst, SSEFirst:
		return Strategy(value)
	default:
		return HTTPFirst
	}
}

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second
	// maxAuthRetries bounds how many times a single Connect call will loop
	// back through the authorization flow before surfacing it as fatal.
	maxAuthRetries = 1
	// connectTimeout bounds a single dial attempt, independent of the
	// backoff between attempts.
	connectTimeout = 10 * time.Second
)

// Kind classifies a remote wire protocol so attemptOrder can build the
// primary/secondary pair a Strategy implies. It is exported so a fake Dial
// can be authored from outside this package (tests in bridge, notably).
type Kind int

const (
	KindHTTP Kind = iota
	KindSSE
)

// Dial opens one of the two wire transports. The Selector passes a nil
// httpClient to an override; the auth round tripper and --header values are
// applied only on the built-in sse/streamable path.
type Dial func(ctx context.Context, k Kind, httpClient *http.Client) (transport.Transport, error)

// Selector runs the transport-and-auth state machine for a single remote
// server URL.
type Selector struct {
	URL      string
	Strategy Strategy
	Handler  pclient.Handler
	AuthRT   *authtransport.RoundTripper
	// Headers are attached, verbatim, to every outgoing request to URL (the
	// CLI's repeatable --header flag), ahead of any Authorization header the
	// auth round tripper injects.
	Headers map[string]string

	// Logger is optional; nil disables logging.
	Logger Logger

	// Dial overrides how a transport of a given kind is constructed; nil
	// uses the real sse/streamable clients against URL. Tests supply a fake
	// to exercise ordering, backoff and auth-retry without a network.
	Dial Dial

	// locked records the transport kind a successful Connect settled on,
	// purely for observability; Connect/Reconnect never consult it to change
	// behavior beyond always restarting at the configured primary on
	// reconnect.
	locked *Kind
}

// headerRoundTripper injects a fixed set of headers into every request
// before delegating to next, used to thread --header values in front of the
// auth round tripper (or http.DefaultTransport when there is none).
type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(h.headers) > 0 {
		req = req.Clone(req.Context())
		for name, value := range h.headers {
			req.Header.Set(name, value)
		}
	}
	return h.next.RoundTrip(req)
}

// Logger is the minimal logging surface the selector needs. It matches
// internal/bridgelog.Logger without importing it, so tests can supply a
// stub without pulling in slog.
type Logger interface {
	Debug(msg string, kv ...any)
	Warn(msg string, kv ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

func (s *Selector) logger() Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return nopLogger{}
}

// Connect runs the INIT/TRY/AUTH/BACKOFF state machine until a transport is
// established or ctx is done. A successful connect locks in that transport
// kind for subsequent calls to Reconnect.
func (s *Selector) Connect(ctx context.Context) (transport.Transport, error) {
	order := s.attemptOrder()
	backoff := backoffBase
	authRetries := 0
	// idx indexes into order independently of the auth-retry count: a normal
	// failure rotates to the next kind, but an AuthError always re-dials
	// order[0] (AUTH -> TRY[primary]), so idx resets to 0 on that path
	// instead of advancing with the loop.
	idx := 0

	for {
		k := order[idx%len(order)]
		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		tr, err := s.dial(dialCtx, k)
		cancel()
		if err == nil {
			s.locked = &k
			return tr, nil
		}

		var authErr *authtransport.AuthError
		if errors.As(err, &authErr) {
			authRetries++
			if authRetries > maxAuthRetries {
				return nil, fmt.Errorf("transportselector: authorization failed after %d attempts: %w", authRetries, err)
			}
			s.logger().Warn("authorization challenge, retrying", "kind", k, "err", err)
			idx = 0
			continue
		}

		if isFatal(err) {
			return nil, fmt.Errorf("transportselector: fatal connect error: %w", err)
		}

		// network/5xx: single-transport strategies retry the same kind after
		// backoff; *-first strategies fall through to the other kind first
		// and only back off once both have been tried in this cycle.
		s.logger().Warn("connect attempt failed, will retry", "kind", k, "err", err, "backoff", backoff)
		if len(order) == 1 || idx%len(order) == len(order)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter(backoff)):
			}
			backoff = nextBackoff(backoff)
		}
		idx++
	}
}

// Reconnect re-enters the state machine from TRY[primary], regardless of
// which transport a prior session locked in — a dropped connection always
// redoes the full handshake per the spec's ordering guarantee.
func (s *Selector) Reconnect(ctx context.Context) (transport.Transport, error) {
	s.locked = nil
	return s.Connect(ctx)
}

// attemptOrder returns the transport kinds to try, primary first, for the
// configured Strategy.
func (s *Selector) attemptOrder() []Kind {
	switch s.Strategy {
	case HTTPOnly:
		return []Kind{KindHTTP}
	case SSEOnly:
		return []Kind{KindSSE}
	case SSEFirst:
		return []Kind{KindSSE, KindHTTP}
	default: // HTTPFirst and any unrecognized value
		return []Kind{KindHTTP, KindSSE}
	}
}

func (s *Selector) dial(ctx context.Context, k Kind) (transport.Transport, error) {
	if s.Dial != nil {
		return s.Dial(ctx, k, nil)
	}
	var base http.RoundTripper = http.DefaultTransport
	if s.AuthRT != nil {
		base = s.AuthRT
	}
	var httpClient *http.Client
	if s.AuthRT != nil || len(s.Headers) > 0 {
		httpClient = &http.Client{Transport: &headerRoundTripper{headers: s.Headers, next: base}}
	}
	switch k {
	case KindSSE:
		var opts []sse.Option
		if s.Handler != nil {
			opts = append(opts, sse.WithHandler(mcpclient.NewHandler(s.Handler)))
		}
		if httpClient != nil {
			opts = append(opts, sse.WithHttpClient(httpClient), sse.WithMessageHttpClient(httpClient))
		}
		return sse.New(ctx, s.URL, opts...)
	default:
		var opts []streamable.Option
		if s.Handler != nil {
			opts = append(opts, streamable.WithHandler(mcpclient.NewHandler(s.Handler)))
		}
		if httpClient != nil {
			opts = append(opts, streamable.WithHTTPClient(httpClient))
		}
		return streamable.New(ctx, s.URL, opts...)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

// isFatal reports whether err represents a condition no amount of retrying
// will fix (bad URL, unsupported scheme) rather than a transient network or
// server error. sse.New/streamable.New build an http.Request from s.URL
// under the hood, so a malformed URL or bad scheme surfaces the same way any
// net/http caller sees it: as a *url.Error from parsing, or as the
// "unsupported protocol scheme"/"missing protocol scheme" text, bare or
// inside the *url.Error net/http wraps every request failure in. Any other
// *url.Error (a refused or reset connection, a timeout) is not fatal.
func isFatal(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return true
	}
	return strings.Contains(err.Error(), "unsupported protocol scheme") ||
		strings.Contains(err.Error(), "missing protocol scheme")
}
