// Package departure implements the voluntary-exit fast path described in
// spec.md §4.8. The teacher has no direct analogue (its fixed roster
// design never models a voluntary leader departure); this is grounded
// instead on original_source/peer.py's encerrar() and its EXIT branch of
// tratar_mensagem, generalized per spec.md to the coordinator's extra
// UPDATE/MAP_UPDATE/START_ELECTION fan-out.
package departure

import (
	"log"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/wire"
)

// Handler issues the departure fast path against a membership.Store.
type Handler struct {
	store *membership.Store
	pool  *transport.SendPool
	log   *log.Logger
}

// New creates a departure Handler.
func New(store *membership.Store, pool *transport.SendPool, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{store: store, pool: pool, log: logger}
}

// DepartCoordinator runs spec.md §4.8 steps 1-3 (step 4, terminating the
// process, is the caller's responsibility after this returns):
//  1. Remove self from members/idOf/nameOf.
//  2. Fan out UPDATE and MAP_UPDATE reflecting the removal.
//  3. Fan out START_ELECTION so peers don't wait for the failure-detector
//     timeout.
func (h *Handler) DepartCoordinator() {
	self := h.store.Self()
	remaining := make([]membership.Addr, 0)
	for _, p := range h.store.Members() {
		if p != self {
			remaining = append(remaining, p)
		}
	}

	h.store.RemoveSelf()

	updateFrame, err := wire.Encode(wire.Frame{Verb: wire.VerbUpdate, Members: h.store.Members()})
	if err != nil {
		h.log.Printf("encode UPDATE: %v", err)
	}
	mapFrame, err := wire.Encode(wire.Frame{Verb: wire.VerbMapUpdate, Ids: h.store.IdMap(), Names: h.store.NameMap()})
	if err != nil {
		h.log.Printf("encode MAP_UPDATE: %v", err)
	}
	startElectionFrame, err := wire.Encode(wire.Frame{Verb: wire.VerbStartElection})
	if err != nil {
		h.log.Printf("encode START_ELECTION: %v", err)
	}

	for _, p := range remaining {
		addr := transport.AddrString(p)
		if updateFrame != "" {
			h.pool.Send(addr, []byte(updateFrame))
		}
		if mapFrame != "" {
			h.pool.Send(addr, []byte(mapFrame))
		}
		if startElectionFrame != "" {
			h.pool.Send(addr, []byte(startElectionFrame))
		}
	}

	h.store.Emit(membership.EventSystem, "coordinator %s departing voluntarily", h.store.SelfName())
}

// DepartMember handles a non-coordinator voluntary exit (spec.md §4.8,
// last paragraph): send EXIT to every other member. Receivers handle the
// drop and, if they are the coordinator, re-fan the UPDATE themselves
// (see internal/router's EXIT handling).
func (h *Handler) DepartMember() {
	self := h.store.Self()
	frame, err := wire.Encode(wire.Frame{Verb: wire.VerbExit, Addr: self, Name: h.store.SelfName()})
	if err != nil {
		h.log.Printf("encode EXIT: %v", err)
		return
	}
	for _, p := range h.store.Members() {
		if p == self {
			continue
		}
		h.pool.Send(transport.AddrString(p), []byte(frame))
	}
	h.store.Emit(membership.EventSystem, "%s leaving", h.store.SelfName())
}
