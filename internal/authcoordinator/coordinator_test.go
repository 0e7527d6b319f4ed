package authcoordinator

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/mcp-remote/internal/authstore"
)

func openStore(t *testing.T) *authstore.Store {
	t.Helper()
	t.Setenv("MCP_REMOTE_CONFIG_DIR", t.TempDir())
	s, err := authstore.Open("https://example.com/mcp", "coord-hash")
	require.NoError(t, err)
	return s
}

func TestCoordinate_FirstCallerBecomesLeader(t *testing.T) {
	store := openStore(t)
	lease, err := Coordinate(store, 4100)
	require.NoError(t, err)
	assert.Equal(t, Leader, lease.Role)
	assert.Equal(t, 4100, lease.Port)
}

func TestCoordinate_SecondCallerBecomesFollowerOfLivingLeader(t *testing.T) {
	store := openStore(t)
	leaderLease, err := Coordinate(store, 4200)
	require.NoError(t, err)
	require.Equal(t, Leader, leaderLease.Role)

	followerLease, err := Coordinate(store, 4201)
	require.NoError(t, err)
	assert.Equal(t, Follower, followerLease.Role)
	assert.Equal(t, 4200, followerLease.Port, "follower inherits the leader's bound port, not its own hint")
}

func TestCoordinate_ReclaimsLockFromDeadProcess(t *testing.T) {
	store := openStore(t)
	// simulate a stale lock left behind by a pid that cannot possibly be
	// alive, without waiting out StaleAfter.
	acquired, _, err := store.TryAcquireLock(&authstore.Lock{PID: deadPID(), Port: 4300, CreatedAt: time.Now()})
	require.NoError(t, err)
	require.True(t, acquired)

	lease, err := Coordinate(store, 4301)
	require.NoError(t, err)
	assert.Equal(t, Leader, lease.Role)
	assert.Equal(t, 4301, lease.Port)
}

func TestLease_ReleaseByLeaderClearsLock(t *testing.T) {
	store := openStore(t)
	lease, err := Coordinate(store, 4400)
	require.NoError(t, err)
	require.NoError(t, lease.Release())

	_, ok := store.ReadLock()
	assert.False(t, ok)
}

func TestLease_ReleaseByFollowerIsNoop(t *testing.T) {
	store := openStore(t)
	_, err := Coordinate(store, 4500)
	require.NoError(t, err)

	followerLease, err := Coordinate(store, 4501)
	require.NoError(t, err)
	require.Equal(t, Follower, followerLease.Role)
	assert.NoError(t, followerLease.Release())

	_, ok := store.ReadLock()
	assert.True(t, ok, "follower Release must not disturb the leader's lock")
}

func TestLease_UpdatePortByLeaderRewritesLock(t *testing.T) {
	store := openStore(t)
	lease, err := Coordinate(store, 4600)
	require.NoError(t, err)
	require.Equal(t, Leader, lease.Role)

	require.NoError(t, lease.UpdatePort(4699))
	assert.Equal(t, 4699, lease.Port)

	lock, ok := store.ReadLock()
	require.True(t, ok)
	assert.Equal(t, 4699, lock.Port)
}

func TestLease_UpdatePortByFollowerIsNoop(t *testing.T) {
	store := openStore(t)
	_, err := Coordinate(store, 4700)
	require.NoError(t, err)

	followerLease, err := Coordinate(store, 4701)
	require.NoError(t, err)
	require.Equal(t, Follower, followerLease.Role)

	assert.NoError(t, followerLease.UpdatePort(4799))

	lock, ok := store.ReadLock()
	require.True(t, ok)
	assert.Equal(t, 4700, lock.Port, "follower UpdatePort must not disturb the leader's lock")
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "leader", Leader.String())
	assert.Equal(t, "follower", Follower.String())
}

// deadPID returns a pid number very unlikely to be alive for the test's
// short lifetime: the current process's pid plus a large offset.
func deadPID() int {
	return os.Getpid() + 1_000_000
}
