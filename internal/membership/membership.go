// Package membership holds the single authoritative piece of mutable state
// every peer carries: its view of who else is in the network, what ids and
// names they go by, who the current coordinator is believed to be, and when
// each peer was last heard from.
package membership

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Role is the local peer's position with respect to coordination.
type Role int

const (
	// RoleJoining is held between process start and a completed JOIN
	// handshake (or founding-coordinator fallback).
	RoleJoining Role = iota
	RoleMember
	RoleElecting
	RoleCoordinator
)

func (r Role) String() string {
	switch r {
	case RoleJoining:
		return "Joining"
	case RoleMember:
		return "Member"
	case RoleElecting:
		return "Electing"
	case RoleCoordinator:
		return "Coordinator"
	default:
		return "Unknown"
	}
}

// Addr is a peer's network identity. Hosts are compared structurally, so
// Addr is safe to use as a map key.
type Addr struct {
	Host string
	Port uint16
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Id orders peers for Bully elections. Higher wins.
type Id int

// NoId marks a peer that has not yet been assigned an identifier.
const NoId Id = -1

// EventKind categorizes a SystemEvent emitted for the out-of-scope UI
// collaborator to render.
type EventKind string

const (
	EventSystem  EventKind = "SISTEMA"
	EventElecao  EventKind = "ELEICAO"
	EventAlerta  EventKind = "ALERTA"
	EventChat    EventKind = "CHAT"
	EventError   EventKind = "ERRO"
)

// SystemEvent is a line the core wants the UI collaborator to display.
type SystemEvent struct {
	Kind EventKind
	Text string
}

// Store is the single instance of replicated membership state held by a
// peer. All reads and writes go through its methods, which serialize
// access with a single RWMutex, mirroring the teacher's Coordinator
// struct in internal/election/bully.go.
type Store struct {
	mu sync.RWMutex

	self     Addr
	selfName string
	selfId   Id

	role      Role
	members   map[Addr]struct{}
	idOf      map[Addr]Id
	nameOf    map[Addr]string
	coordAddr Addr
	hasCoord  bool
	nextId    Id
	lastSeen  map[Addr]time.Time
	electing  bool

	events chan SystemEvent
}

// New creates an empty Store for a peer identified by self/selfName. The
// peer starts in RoleJoining with an unset selfId, per spec.md §3.
func New(self Addr, selfName string) *Store {
	return &Store{
		self:     self,
		selfName: selfName,
		selfId:   NoId,
		role:     RoleJoining,
		members:  make(map[Addr]struct{}),
		idOf:     make(map[Addr]Id),
		nameOf:   make(map[Addr]string),
		nextId:   0,
		lastSeen: make(map[Addr]time.Time),
		events:   make(chan SystemEvent, 256),
	}
}

// Events returns the channel of SystemEvents the UI collaborator should
// drain. It is buffered; once the buffer is full, further events are
// dropped rather than blocking mutators.
func (s *Store) Events() <-chan SystemEvent {
	return s.events
}

func (s *Store) emit(kind EventKind, format string, args ...interface{}) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	select {
	case s.events <- SystemEvent{Kind: kind, Text: text}:
	default:
		// Drop rather than block a mutation under lock on a stalled UI.
	}
}

// Self returns this peer's own address.
func (s *Store) Self() Addr { return s.self }

// SelfName returns this peer's display name.
func (s *Store) SelfName() string { return s.selfName }

// SelfId returns this peer's current id, or NoId if unassigned.
func (s *Store) SelfId() Id {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfId
}

// SetSelfId assigns this peer's id, typically from a JOIN reply or an
// election's Id recalculation.
func (s *Store) SetSelfId(id Id) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfId = id
}

// Role returns the current role.
func (s *Store) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// SetRole transitions the local role.
func (s *Store) SetRole(r Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = r
}

// CoordAddr returns the believed coordinator address and whether one is
// known at all.
func (s *Store) CoordAddr() (Addr, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coordAddr, s.hasCoord
}

// SetCoordAddr records the believed coordinator address.
func (s *Store) SetCoordAddr(a Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coordAddr = a
	s.hasCoord = true
}

// Electing reports whether a local election is in flight.
func (s *Store) Electing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.electing
}

// SetElecting flips the local electing flag. Invariant 5 (spec.md §8):
// the election procedure must be idempotent when electing is already
// true, which callers enforce by checking Electing() before calling
// SetElecting(true) under the same critical section (see TryBeginElection).
func (s *Store) SetElecting(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.electing = v
}

// TryBeginElection atomically checks electing==false && selfId!=NoId and,
// if so, sets electing=true and returns true. Otherwise it is a no-op and
// returns false. This is the single entry point that guarantees election
// idempotency (spec.md §8 invariant 5, §4.5 re-entrancy note).
func (s *Store) TryBeginElection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.electing || s.selfId == NoId {
		return false
	}
	s.electing = true
	s.role = RoleElecting
	return true
}

// Members returns a snapshot slice of known peer addresses.
func (s *Store) Members() []Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Addr, 0, len(s.members))
	for a := range s.members {
		out = append(out, a)
	}
	return out
}

// IdOf returns the id assigned to addr, or (NoId, false).
func (s *Store) IdOf(addr Addr) (Id, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idOf[addr]
	return id, ok
}

// NameOf returns the display name for addr, or ("", false).
func (s *Store) NameOf(addr Addr) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.nameOf[addr]
	return name, ok
}

// IdMap returns a snapshot copy of the full address->id map.
func (s *Store) IdMap() map[Addr]Id {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Addr]Id, len(s.idOf))
	for k, v := range s.idOf {
		out[k] = v
	}
	return out
}

// NameMap returns a snapshot copy of the full address->name map.
func (s *Store) NameMap() map[Addr]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Addr]string, len(s.nameOf))
	for k, v := range s.nameOf {
		out[k] = v
	}
	return out
}

// LastSeen returns the last heartbeat timestamp recorded for addr, or the
// zero time and false if none has ever been recorded (bootstrap grace,
// spec.md §4.7).
func (s *Store) LastSeen(addr Addr) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastSeen[addr]
	return t, ok
}

// RecordHeartbeat unconditionally records now() as addr's last heartbeat,
// per spec.md §4.6 ("heartbeats from non-members are accepted").
func (s *Store) RecordHeartbeat(addr Addr, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[addr] = now
}

// NextId returns the next id the coordinator would assign.
func (s *Store) NextId() Id {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextId
}

// BecomeFoundingCoordinator initializes a lone peer as the coordinator of
// a brand-new network: selfId=0, members={self}, per spec.md §4.4.
func (s *Store) BecomeFoundingCoordinator() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfId = 0
	s.role = RoleCoordinator
	s.coordAddr = s.self
	s.hasCoord = true
	s.members = map[Addr]struct{}{s.self: {}}
	s.idOf = map[Addr]Id{s.self: 0}
	s.nameOf = map[Addr]string{s.self: s.selfName}
	s.nextId = 1
}

// JoinAccepted initializes a new member's state from a JOIN reply: the
// assigned id, the coordinator's member snapshot, and the bootstrap
// address as coordAddr.
func (s *Store) JoinAccepted(id Id, peers []Addr, coord Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfId = id
	s.role = RoleMember
	s.coordAddr = coord
	s.hasCoord = true
	s.members = make(map[Addr]struct{}, len(peers))
	for _, p := range peers {
		s.members[p] = struct{}{}
	}
	s.members[s.self] = struct{}{}
}

// Seed directly installs a peer's known id and name into the local
// membership view, bypassing the normal AddPeer id-assignment path. It
// exists so an operator's static seed roster (spec.md §6) can
// pre-populate members/idOf/nameOf ahead of any live JOIN/UPDATE
// traffic, for local multi-peer test runs. If addr is this peer's own
// address, selfId is set too, and nextId is advanced past id so a
// later AddPeer/RecalculateIds never reassigns it.
func (s *Store) Seed(addr Addr, id Id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[addr] = struct{}{}
	s.idOf[addr] = id
	s.nameOf[addr] = name
	if addr == s.self {
		s.selfId = id
	}
	if id >= s.nextId {
		s.nextId = id + 1
	}
}

// AddPeer admits addr/name into membership if not already present,
// assigning the next available id. It returns the assigned id and whether
// the peer was newly added. Only meaningful when called at the
// coordinator (spec.md §4.3).
func (s *Store) AddPeer(addr Addr, name string) (Id, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[addr]; ok {
		return s.idOf[addr], false
	}
	id := s.nextId
	s.nextId++
	s.members[addr] = struct{}{}
	s.idOf[addr] = id
	s.nameOf[addr] = name
	return id, true
}

// RemovePeer drops addr from members, idOf, nameOf, and lastSeen
// (spec.md §4.3).
func (s *Store) RemovePeer(addr Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, addr)
	delete(s.idOf, addr)
	delete(s.nameOf, addr)
	delete(s.lastSeen, addr)
}

// ApplySnapshot replaces members with newMembers, computes the removed
// set against the prior members, drops their name entries, and emits a
// SystemEvent per removal (spec.md §4.3).
func (s *Store) ApplySnapshot(newMembers []Addr) {
	s.mu.Lock()
	next := make(map[Addr]struct{}, len(newMembers))
	for _, a := range newMembers {
		next[a] = struct{}{}
	}
	var removed []Addr
	for a := range s.members {
		if _, ok := next[a]; !ok {
			removed = append(removed, a)
		}
	}
	names := make([]string, 0, len(removed))
	for _, a := range removed {
		name := s.nameOf[a]
		if name == "" {
			name = "Unknown"
		}
		names = append(names, name)
		delete(s.nameOf, a)
		delete(s.idOf, a)
		delete(s.lastSeen, a)
	}
	s.members = next
	s.mu.Unlock()

	if len(removed) == 0 {
		s.emit(EventSystem, "peer list updated")
		return
	}
	for i, a := range removed {
		s.emit(EventSystem, "peer removed: %s (%s)", names[i], a)
	}
}

// ReplaceMaps replaces idOf and nameOf wholesale from an inbound
// MAP_UPDATE frame. Per spec.md §7, unknown addresses in the payload are
// accepted as-authoritative; the sender is trusted.
func (s *Store) ReplaceMaps(ids map[Addr]Id, names map[Addr]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idOf = ids
	s.nameOf = names
}

// RecalculateIds runs the Bully winner's Id recalculation (spec.md §4.5):
// iterate members in a stable order, keep pre-existing ids, assign fresh
// sequential ids to any peer lacking one, ensure the winner (self) has an
// id, and set nextId = 1 + max(idOf.values). Ids are guaranteed unique.
func (s *Store) RecalculateIds() {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]Addr, 0, len(s.members))
	for a := range s.members {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		if addrs[i].Host != addrs[j].Host {
			return addrs[i].Host < addrs[j].Host
		}
		return addrs[i].Port < addrs[j].Port
	})

	used := make(map[Id]struct{})
	newIds := make(map[Addr]Id, len(addrs))

	// Preserve pre-existing ids first so later fresh assignment never
	// collides with one already claimed.
	for _, a := range addrs {
		if id, ok := s.idOf[a]; ok {
			if _, taken := used[id]; !taken {
				newIds[a] = id
				used[id] = struct{}{}
			}
		}
	}

	fresh := Id(0)
	nextFree := func() Id {
		for {
			if _, taken := used[fresh]; !taken {
				id := fresh
				used[id] = struct{}{}
				fresh++
				return id
			}
			fresh++
		}
	}

	for _, a := range addrs {
		if _, ok := newIds[a]; ok {
			continue
		}
		newIds[a] = nextFree()
	}

	if _, ok := newIds[s.self]; !ok {
		newIds[s.self] = nextFree()
	}
	if id, ok := newIds[s.self]; ok {
		s.selfId = id
	}

	maxId := Id(-1)
	for _, id := range newIds {
		if id > maxId {
			maxId = id
		}
	}

	s.idOf = newIds
	s.nextId = maxId + 1
}

// AssumeSeededRole derives role and coordAddr from previously-Seed'd
// idOf data: the member holding id 0 is taken to be the coordinator,
// matching the founding-coordinator convention (spec.md §4.4). It is a
// no-op if no member currently holds id 0. This lets a peer started
// from a static seed roster (config.ApplySeedRoster) skip the network
// Join Protocol entirely instead of having it overwrite the seeded
// view.
func (s *Store) AssumeSeededRole() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var coord Addr
	found := false
	for a, id := range s.idOf {
		if id == 0 {
			coord = a
			found = true
			break
		}
	}
	if !found {
		return
	}
	s.coordAddr = coord
	s.hasCoord = true
	if coord == s.self {
		s.role = RoleCoordinator
	} else {
		s.role = RoleMember
	}
}

// HigherPeers returns every member whose id exceeds selfId, per the
// election procedure step 1 (spec.md §4.5). Returns (nil, false) if
// selfId is unset ("abort, ineligible").
func (s *Store) HigherPeers() ([]Addr, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selfId == NoId {
		return nil, false
	}
	var higher []Addr
	for a, id := range s.idOf {
		if a == s.self {
			continue
		}
		if id > s.selfId {
			higher = append(higher, a)
		}
	}
	return higher, true
}

// BecomeCoordinator transitions the local role to Coordinator, sets
// coordAddr to self, and clears electing. Callers are responsible for
// then calling RecalculateIds and starting the coordinator heartbeat
// loop, per spec.md §4.5 step 4.
func (s *Store) BecomeCoordinator() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = RoleCoordinator
	s.coordAddr = s.self
	s.hasCoord = true
	s.electing = false
}

// AcceptCoordinator adopts addr as the new coordinator, sets role to
// Member, and clears electing (spec.md §4.5 Electing->Idle and Router's
// COORDINATOR handling).
func (s *Store) AcceptCoordinator(addr Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coordAddr = addr
	s.hasCoord = true
	s.role = RoleMember
	s.electing = false
}

// RemoveSelf drops self from members/idOf/nameOf, for the voluntary
// coordinator departure path (spec.md §4.8).
func (s *Store) RemoveSelf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, s.self)
	delete(s.idOf, s.self)
	delete(s.nameOf, s.self)
}

// Emit publishes a SystemEvent for the UI collaborator. Exported so
// components outside membership (election, heartbeat, router, ...) can
// surface user-visible diagnostics through the same channel.
func (s *Store) Emit(kind EventKind, format string, args ...interface{}) {
	s.emit(kind, format, args...)
}

// Snapshot is a point-in-time, lock-free copy of the fields needed to
// check the testable properties in spec.md §8 without racing the live
// store.
type Snapshot struct {
	Self      Addr
	SelfId    Id
	Role      Role
	Members   []Addr
	IdOf      map[Addr]Id
	NameOf    map[Addr]string
	CoordAddr Addr
	HasCoord  bool
	NextId    Id
	Electing  bool
}

// Snap takes a consistent snapshot of the whole store.
func (s *Store) Snap() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]Addr, 0, len(s.members))
	for a := range s.members {
		members = append(members, a)
	}
	idOf := make(map[Addr]Id, len(s.idOf))
	for k, v := range s.idOf {
		idOf[k] = v
	}
	nameOf := make(map[Addr]string, len(s.nameOf))
	for k, v := range s.nameOf {
		nameOf[k] = v
	}
	return Snapshot{
		Self:      s.self,
		SelfId:    s.selfId,
		Role:      s.role,
		Members:   members,
		IdOf:      idOf,
		NameOf:    nameOf,
		CoordAddr: s.coordAddr,
		HasCoord:  s.hasCoord,
		NextId:    s.nextId,
		Electing:  s.electing,
	}
}
