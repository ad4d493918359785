// Package election implements the Bully election state machine described
// in spec.md §4.5. It is the direct generalization of the teacher's
// Coordinator type in internal/election/bully.go (originally written for
// a fixed 1..totalReplicas integer id space) to the spec's dynamic,
// coordinator-assigned Addr->Id membership.
package election

import (
	"log"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/metrics"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/wire"
)

// Engine runs the Bully algorithm against a membership.Store. It holds no
// state of its own beyond what it needs to start the coordinator
// heartbeat loop on winning — all durable state lives in the Store, per
// spec.md §5 ("the Membership Store is the sole shared mutable
// resource").
type Engine struct {
	store *membership.Store
	pool  *transport.SendPool
	log   *log.Logger

	// onBecomeCoordinator is invoked after a successful self-declaration,
	// so the caller (internal/peer) can start the coordinator's Heartbeat
	// loop without election importing heartbeat and creating a cycle.
	onBecomeCoordinator func()
}

// New creates an election Engine. onBecomeCoordinator is called
// synchronously right after role/coordAddr/ids are updated, so the
// caller can kick off dependent loops (spec.md §4.5 step 4: "start the
// coordinator's Heartbeat loop").
func New(store *membership.Store, pool *transport.SendPool, logger *log.Logger, onBecomeCoordinator func()) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{store: store, pool: pool, log: logger, onBecomeCoordinator: onBecomeCoordinator}
}

// Begin runs the election procedure from spec.md §4.5. It is idempotent:
// if an election is already in flight (electing=true) or selfId is
// unset, it is a no-op, satisfying spec.md §8 invariant 5.
func (e *Engine) Begin() {
	if !e.store.TryBeginElection() {
		return
	}
	metrics.ElectionsStarted.Inc()
	e.store.Emit(membership.EventElecao, "coordinator inactive, starting election")

	higher, eligible := e.store.HigherPeers()
	if !eligible {
		// selfId unset: abort. Clear electing so a later eligible attempt
		// isn't blocked.
		e.store.SetElecting(false)
		return
	}

	self := e.store.Self()
	selfId := e.store.SelfId()
	frame, err := wire.Encode(wire.Frame{Verb: wire.VerbElection, SenderId: selfId})
	if err != nil {
		e.log.Printf("encode ELECTION: %v", err)
		e.store.SetElecting(false)
		return
	}

	reachedAny := false
	for _, p := range higher {
		ok := e.sendElection(p, frame)
		if ok {
			reachedAny = true
		}
	}

	if reachedAny {
		e.log.Printf("election: waiting for a higher peer to announce itself")
		return
	}

	e.becomeCoordinator(self)
}

// sendElection performs a blocking dial (not via the fire-and-forget
// pool) because spec.md §4.5 step 2 needs to know whether the send
// succeeded to decide whether "someone higher is alive".
func (e *Engine) sendElection(addr membership.Addr, frame string) bool {
	_, ok := transport.Dial(transport.AddrString(addr), []byte(frame), false)
	return ok
}

func (e *Engine) becomeCoordinator(self membership.Addr) {
	e.store.BecomeCoordinator()
	e.store.RecalculateIds()
	metrics.ElectionsWon.Inc()
	metrics.CoordinatorChanges.Inc()

	name := e.store.SelfName()
	frame, err := wire.Encode(wire.Frame{Verb: wire.VerbCoordinator, Addr: self, Name: name})
	if err != nil {
		e.log.Printf("encode COORDINATOR: %v", err)
		return
	}
	e.broadcastToOthers(frame)

	e.store.Emit(membership.EventElecao, "%s (%s) is the new coordinator", name, self)
	e.log.Printf("elected self as coordinator (id=%d)", e.store.SelfId())

	if e.onBecomeCoordinator != nil {
		e.onBecomeCoordinator()
	}
}

func (e *Engine) broadcastToOthers(frame string) {
	self := e.store.Self()
	for _, p := range e.store.Members() {
		if p == self {
			continue
		}
		e.pool.Send(transport.AddrString(p), []byte(frame))
	}
}

// HandleElection processes an inbound ELECTION frame per spec.md §4.9:
// if selfId > senderId, spawn a local election (the local peer is a
// higher candidate and must contest too). Receipt of ELECTION from a
// lower id while already electing is a no-op, per spec.md §4.5.
func (e *Engine) HandleElection(senderId membership.Id) {
	if e.store.SelfId() > senderId {
		go e.Begin()
	}
}

// HandleCoordinator processes an inbound COORDINATOR frame per spec.md
// §4.5 Electing->Idle and Coordinator->Idle transitions: adopt the
// announced address, become a Member, clear electing.
func (e *Engine) HandleCoordinator(addr membership.Addr, name string) {
	prev, hadCoord := e.store.CoordAddr()
	e.store.AcceptCoordinator(addr)
	if !hadCoord || prev != addr {
		metrics.CoordinatorChanges.Inc()
	}
	e.store.Emit(membership.EventElecao, "new coordinator elected: %s (%s)", name, addr)
}

// HandleStartElection processes an inbound START_ELECTION frame
// (spec.md §4.8 step 3 / §4.9): spawn a local election immediately
// rather than waiting for the Failure Detector's timeout.
func (e *Engine) HandleStartElection() {
	go e.Begin()
}
