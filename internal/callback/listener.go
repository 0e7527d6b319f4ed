// Package callback implements the loopback HTTP listener that receives the
// OAuth authorization-code redirect. The leader process binds it; follower
// processes never do, they poll WaitForAuth on the leader's bound port
// instead.
package callback

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// IdleTimeout bounds how long the listener stays up waiting for the
// redirect before giving up.
const IdleTimeout = 5 * time.Minute

// Result is what the callback redirect, or a timeout, resolves to.
type Result struct {
	Code  string
	State string
	Err   error
}

// Listener serves /oauth/callback and /wait-for-auth on a loopback address.
type Listener struct {
	srv      *http.Server
	ln       net.Listener
	port     int
	once     sync.Once
	done     chan Result
	expected string // expected state parameter, if any
}

// Bind opens a loopback listener starting at preferredPort and scanning
// upward for the next free port if it is already taken.
func Bind(host string, preferredPort int, expectedState string) (*Listener, error) {
	port := preferredPort
	var ln net.Listener
	var err error
	for attempts := 0; attempts < 50; attempts++ {
		ln, err = net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err == nil {
			break
		}
		port++
	}
	if err != nil {
		return nil, fmt.Errorf("callback: bind loopback listener: %w", err)
	}
	l := &Listener{
		ln:       ln,
		port:     port,
		done:     make(chan Result, 1),
		expected: expectedState,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", l.handleCallback)
	mux.HandleFunc("/wait-for-auth", l.handleWait)
	mux.HandleFunc("/", http.NotFound)
	l.srv = &http.Server{Handler: mux}
	go func() { _ = l.srv.Serve(ln) }()
	return l, nil
}

// Port returns the bound port, which may differ from the preferred one.
func (l *Listener) Port() int { return l.port }

// Wait blocks until the callback resolves or IdleTimeout elapses.
func (l *Listener) Wait(ctx context.Context) Result {
	select {
	case r := <-l.done:
		// put it back so /wait-for-auth pollers still observe the result.
		l.done <- r
		return r
	case <-time.After(IdleTimeout):
		return Result{Err: fmt.Errorf("callback: timed out waiting for authorization redirect")}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// Close tears down the listener. Safe to call more than once.
func (l *Listener) Close() error {
	if l.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.srv.Shutdown(ctx)
}

func (l *Listener) resolve(r Result) {
	l.once.Do(func() { l.done <- r })
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		l.resolve(Result{Err: fmt.Errorf("authorization denied: %s %s", errParam, desc)})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Authorization failed, you may close this tab."))
		return
	}
	code := q.Get("code")
	state := q.Get("state")
	if code == "" {
		l.resolve(Result{Err: fmt.Errorf("authorization callback missing code parameter")})
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	if l.expected != "" && state != l.expected {
		l.resolve(Result{Err: fmt.Errorf("authorization callback state mismatch")})
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	l.resolve(Result{Code: code, State: state})
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Authorization complete, you may close this tab."))
}

// handleWait lets a follower long-poll for the leader's result without
// sharing the Go channel across a process boundary. It returns 202 while
// pending and 200 once resolved (callers only use this as a wake-up signal
// and then read tokens back from the shared Config Store).
func (l *Listener) handleWait(w http.ResponseWriter, r *http.Request) {
	select {
	case res := <-l.done:
		// put it back so a second poller (or the leader path itself) still
		// observes the result.
		l.done <- res
		if res.Err != nil {
			http.Error(w, res.Err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	case <-time.After(25 * time.Second):
		w.WriteHeader(http.StatusAccepted)
	case <-r.Context().Done():
	}
}
