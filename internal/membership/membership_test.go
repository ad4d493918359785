package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(port uint16) Addr {
	return Addr{Host: "127.0.0.1", Port: port}
}

func TestBecomeFoundingCoordinator(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.BecomeFoundingCoordinator()

	assert.Equal(t, Id(0), s.SelfId())
	assert.Equal(t, RoleCoordinator, s.Role())
	coord, ok := s.CoordAddr()
	assert.True(t, ok)
	assert.Equal(t, addr(9000), coord)
	assert.ElementsMatch(t, []Addr{addr(9000)}, s.Members())
}

func TestJoinAccepted(t *testing.T) {
	s := New(addr(9001), "Bob")
	peers := []Addr{addr(9000)}
	s.JoinAccepted(1, peers, addr(9000))

	assert.Equal(t, Id(1), s.SelfId())
	assert.Equal(t, RoleMember, s.Role())
	coord, ok := s.CoordAddr()
	assert.True(t, ok)
	assert.Equal(t, addr(9000), coord)
	assert.ElementsMatch(t, []Addr{addr(9000), addr(9001)}, s.Members())
}

func TestAddPeerAssignsSequentialIdsAndDetectsDuplicate(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.BecomeFoundingCoordinator()

	id1, added1 := s.AddPeer(addr(9001), "Bob")
	require.True(t, added1)
	assert.Equal(t, Id(1), id1)

	id2, added2 := s.AddPeer(addr(9002), "Carol")
	require.True(t, added2)
	assert.Equal(t, Id(2), id2)

	// Re-adding an existing member is a no-op that returns its current id.
	idAgain, added3 := s.AddPeer(addr(9001), "Bob")
	assert.False(t, added3)
	assert.Equal(t, id1, idAgain)
}

func TestRemovePeerDropsAllAssociatedState(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.BecomeFoundingCoordinator()
	s.AddPeer(addr(9001), "Bob")
	s.RecordHeartbeat(addr(9001), time.Now())

	s.RemovePeer(addr(9001))

	assert.NotContains(t, s.Members(), addr(9001))
	_, ok := s.IdOf(addr(9001))
	assert.False(t, ok)
	_, ok = s.NameOf(addr(9001))
	assert.False(t, ok)
	_, ok = s.LastSeen(addr(9001))
	assert.False(t, ok)
}

func TestApplySnapshotEmitsRemovalEvents(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.BecomeFoundingCoordinator()
	s.AddPeer(addr(9001), "Bob")
	s.AddPeer(addr(9002), "Carol")

	// Drain events so far.
	drainEvents(s)

	s.ApplySnapshot([]Addr{addr(9000), addr(9001)})

	assert.ElementsMatch(t, []Addr{addr(9000), addr(9001)}, s.Members())
	_, ok := s.NameOf(addr(9002))
	assert.False(t, ok)

	ev := <-s.Events()
	assert.Equal(t, EventSystem, ev.Kind)
}

func TestRecalculateIdsPreservesExistingAndIsUnique(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.BecomeFoundingCoordinator()
	s.AddPeer(addr(9001), "Bob")
	s.AddPeer(addr(9002), "Carol")

	// Simulate a stale/colliding idOf, as could arrive from an inbound
	// MAP_UPDATE before an election reconciles it.
	ids := s.IdMap()
	ids[addr(9002)] = ids[addr(9001)]
	names := s.NameMap()
	s.ReplaceMaps(ids, names)

	s.RecalculateIds()

	finalIds := s.IdMap()
	seen := make(map[Id]struct{})
	for _, id := range finalIds {
		_, dup := seen[id]
		assert.False(t, dup, "RecalculateIds must produce pairwise-distinct ids")
		seen[id] = struct{}{}
	}
	// Self (the winner) must always end up with an id.
	_, ok := finalIds[addr(9000)]
	assert.True(t, ok)
	assert.NotEqual(t, NoId, s.SelfId())
}

func TestRecalculateIdsGuaranteesWinnerHasId(t *testing.T) {
	s := New(addr(9005), "Dave")
	// Dave joins without yet having any entry in idOf.
	s.JoinAccepted(NoId, []Addr{addr(9000)}, addr(9000))
	s.AddPeer(addr(9000), "Alice")

	s.RecalculateIds()

	assert.NotEqual(t, NoId, s.SelfId())
	_, ok := s.IdOf(addr(9005))
	assert.True(t, ok)
}

func TestHigherPeers(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.BecomeFoundingCoordinator()
	s.AddPeer(addr(9001), "Bob")
	s.AddPeer(addr(9002), "Carol")
	s.SetSelfId(1)

	higher, eligible := s.HigherPeers()
	require.True(t, eligible)
	assert.ElementsMatch(t, []Addr{addr(9002)}, higher)
}

func TestHigherPeersIneligibleWhenSelfIdUnset(t *testing.T) {
	s := New(addr(9000), "Alice")
	_, eligible := s.HigherPeers()
	assert.False(t, eligible)
}

func TestTryBeginElectionIsIdempotent(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.SetSelfId(2)

	assert.True(t, s.TryBeginElection())
	assert.Equal(t, RoleElecting, s.Role())
	// A second concurrent caller must be turned away while one is in flight.
	assert.False(t, s.TryBeginElection())

	s.SetElecting(false)
	assert.True(t, s.TryBeginElection())
}

func TestTryBeginElectionRequiresSelfId(t *testing.T) {
	s := New(addr(9000), "Alice")
	assert.False(t, s.TryBeginElection())
}

func TestBecomeCoordinatorClearsElecting(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.SetSelfId(0)
	s.TryBeginElection()

	s.BecomeCoordinator()

	assert.Equal(t, RoleCoordinator, s.Role())
	assert.False(t, s.Electing())
	coord, ok := s.CoordAddr()
	assert.True(t, ok)
	assert.Equal(t, addr(9000), coord)
}

func TestAcceptCoordinatorClearsElecting(t *testing.T) {
	s := New(addr(9001), "Bob")
	s.SetSelfId(1)
	s.TryBeginElection()

	s.AcceptCoordinator(addr(9000))

	assert.Equal(t, RoleMember, s.Role())
	assert.False(t, s.Electing())
	coord, ok := s.CoordAddr()
	assert.True(t, ok)
	assert.Equal(t, addr(9000), coord)
}

func TestRemoveSelf(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.BecomeFoundingCoordinator()
	s.AddPeer(addr(9001), "Bob")

	s.RemoveSelf()

	assert.NotContains(t, s.Members(), addr(9000))
	_, ok := s.IdOf(addr(9000))
	assert.False(t, ok)
}

func TestRecordHeartbeatAcceptsNonMembers(t *testing.T) {
	s := New(addr(9000), "Alice")
	now := time.Now()
	s.RecordHeartbeat(addr(9999), now)

	seen, ok := s.LastSeen(addr(9999))
	assert.True(t, ok)
	assert.Equal(t, now, seen)
}

func TestSeedInstallsIdAndNameAndAdvancesNextId(t *testing.T) {
	s := New(addr(9700), "Alice")

	s.Seed(addr(9700), 0, "Alice")
	s.Seed(addr(9701), 1, "Bob")

	id, ok := s.IdOf(addr(9701))
	require.True(t, ok)
	assert.Equal(t, Id(1), id)
	name, ok := s.NameOf(addr(9701))
	require.True(t, ok)
	assert.Equal(t, "Bob", name)
	assert.Contains(t, s.Members(), addr(9701))

	// Seeding self also sets selfId.
	assert.Equal(t, Id(0), s.SelfId())

	// nextId must clear every seeded id so a later AddPeer never collides.
	nextId, added := s.AddPeer(addr(9702), "Carol")
	require.True(t, added)
	assert.Equal(t, Id(2), nextId)
}

func TestAssumeSeededRoleCoordinator(t *testing.T) {
	s := New(addr(9710), "Alice")
	s.Seed(addr(9710), 0, "Alice")
	s.Seed(addr(9711), 1, "Bob")

	s.AssumeSeededRole()

	assert.Equal(t, RoleCoordinator, s.Role())
	coord, ok := s.CoordAddr()
	assert.True(t, ok)
	assert.Equal(t, addr(9710), coord)
}

func TestAssumeSeededRoleMember(t *testing.T) {
	s := New(addr(9711), "Bob")
	s.Seed(addr(9710), 0, "Alice")
	s.Seed(addr(9711), 1, "Bob")

	s.AssumeSeededRole()

	assert.Equal(t, RoleMember, s.Role())
	coord, ok := s.CoordAddr()
	assert.True(t, ok)
	assert.Equal(t, addr(9710), coord)
}

func TestAssumeSeededRoleNoOpWithoutIdZero(t *testing.T) {
	s := New(addr(9712), "Carol")
	s.AssumeSeededRole()

	_, ok := s.CoordAddr()
	assert.False(t, ok)
	assert.Equal(t, RoleJoining, s.Role())
}

func TestSnapIsConsistentPointInTime(t *testing.T) {
	s := New(addr(9000), "Alice")
	s.BecomeFoundingCoordinator()
	s.AddPeer(addr(9001), "Bob")

	snap := s.Snap()
	assert.Equal(t, addr(9000), snap.Self)
	assert.Equal(t, Id(0), snap.SelfId)
	assert.Len(t, snap.Members, 2)
}

func drainEvents(s *Store) {
	for {
		select {
		case <-s.Events():
		default:
			return
		}
	}
}
