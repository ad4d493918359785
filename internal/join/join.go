// Package join implements the handshake a new peer performs against a
// known coordinator, per spec.md §4.4. It is the generalization of
// original_source/peer.py's iniciar_rede bootstrap branch, which this
// spec splits into "no bootstrap supplied" (founding coordinator) and
// "bootstrap supplied but unreachable" (also founding coordinator,
// degrading silently per spec.md §7).
package join

import (
	"log"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/wire"
)

// Join performs the handshake. If bootstrap is nil, or the bootstrap
// peer is unreachable, the store becomes a founding coordinator instead
// of returning an error — spec.md §4.4: "If the bootstrap address is
// unreachable, the peer silently falls back to founding-coordinator
// mode. This is a design choice, not a bug."
func Join(store *membership.Store, bootstrap *membership.Addr, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}

	if bootstrap == nil {
		store.BecomeFoundingCoordinator()
		store.Emit(membership.EventSystem, "%s is the network coordinator (id 0)", store.SelfName())
		return
	}

	self := store.Self()
	frame, err := wire.Encode(wire.Frame{Verb: wire.VerbJoin, Addr: self, Name: store.SelfName()})
	if err != nil {
		logger.Printf("encode JOIN: %v", err)
		store.BecomeFoundingCoordinator()
		return
	}

	reply, ok := transport.Dial(transport.AddrString(*bootstrap), []byte(frame), true)
	if !ok || len(reply) == 0 {
		logger.Printf("bootstrap %s unreachable, falling back to founding coordinator", bootstrap)
		store.BecomeFoundingCoordinator()
		store.Emit(membership.EventSystem, "bootstrap unreachable, %s is the network coordinator", store.SelfName())
		return
	}

	id, peers, err := wire.ParseJoinReply(reply)
	if err != nil {
		logger.Printf("invalid JOIN reply from %s: %v", bootstrap, err)
		store.BecomeFoundingCoordinator()
		return
	}

	store.JoinAccepted(id, peers, *bootstrap)
	store.Emit(membership.EventSystem, "assigned id %d", id)
}
