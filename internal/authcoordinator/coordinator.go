// Package authcoordinator provides cross-process single-flight coordination
// for the interactive OAuth authorization flow. When several bridge
// processes are started against the same remote server at once (common when
// a client opens several project windows), exactly one of them should open
// a browser and service the callback; the rest wait for its result.
//
// This generalizes the pending-interaction pattern used elsewhere for
// single-process out-of-band flows (a typed pending entry keyed by
// namespace, completed once from outside the waiter) to a pending entry
// backed by a file lock instead of an in-memory map, since the waiters here
// live in other processes.
package authcoordinator

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/viant/mcp-remote/internal/authstore"
)

// Role describes which side of the coordination a process ended up on.
type Role int

const (
	Follower Role = iota
	Leader
)

func (r Role) String() string {
	if r == Leader {
		return "leader"
	}
	return "follower"
}

// StaleAfter is the window after which a lock with no living owner is
// considered abandoned and reclaimable.
const StaleAfter = 30 * time.Minute

// ErrAbandoned is returned by Release when the lock on disk no longer
// belongs to this process (it was already reclaimed as stale).
var ErrAbandoned = errors.New("authcoordinator: lock no longer owned by this process")

// Lease is the outcome of Coordinate: the assigned role, the callback port
// the leader is listening on (or, for a follower, the port the existing
// leader already bound), and a Release that must be called when the flow
// concludes, successfully or not.
type Lease struct {
	Role   Role
	Port   int
	store  *authstore.Store
	ownPID int
}

// Coordinate attempts to become the leader for store's server hash. The
// desired port is only a hint: a follower's Port reflects whatever the
// existing leader already bound.
func Coordinate(store *authstore.Store, desiredPort int) (*Lease, error) {
	for {
		lock := &authstore.Lock{PID: os.Getpid(), Port: desiredPort, CreatedAt: time.Now()}
		acquired, existing, err := store.TryAcquireLock(lock)
		if err != nil {
			return nil, err
		}
		if acquired {
			return &Lease{Role: Leader, Port: desiredPort, store: store, ownPID: lock.PID}, nil
		}
		if existing == nil {
			// lost a race with a concurrent release; retry
			continue
		}
		if isStale(existing) {
			_ = store.ReleaseLock(existing.PID)
			continue
		}
		return &Lease{Role: Follower, Port: existing.Port, store: store, ownPID: os.Getpid()}, nil
	}
}

// UpdatePort rewrites the lock record with the port the leader's listener
// actually bound, which may differ from the desiredPort passed to Coordinate
// if that port was already in use and callback.Bind scanned upward. A no-op
// for a follower.
func (l *Lease) UpdatePort(port int) error {
	if l.Role != Leader {
		return nil
	}
	l.Port = port
	return l.store.UpdateLockPort(l.ownPID, port)
}

// Release must be called by the leader once the flow concludes so the next
// attempt (by any process) can proceed. Calling Release as a follower is a
// no-op.
func (l *Lease) Release() error {
	if l.Role != Leader {
		return nil
	}
	if err := l.store.ReleaseLock(l.ownPID); err != nil {
		return ErrAbandoned
	}
	return nil
}

func isStale(lock *authstore.Lock) bool {
	if time.Since(lock.CreatedAt) > StaleAfter {
		return true
	}
	return !pidAlive(lock.PID)
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 performs existence/permission checks without delivering a
	// signal; it is the portable "is this pid alive" idiom on POSIX.
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
