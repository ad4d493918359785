// Package router dispatches parsed inbound frames to the appropriate
// component under the Membership Store's lock, per spec.md §4.9. It is
// the generalization of the teacher's handleConnection switch
// (internal/election/bully.go) from a three-verb alphabet to the full
// nine-verb grammar plus the chat fallthrough.
package router

import (
	"log"
	"net"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/election"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/heartbeat"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/metrics"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/wire"
)

// ChatSink receives frames the Router could not classify as protocol
// verbs — the boundary to the out-of-scope UI collaborator (spec.md §1,
// §4.9: "Deliver to UI collaborator as chat").
type ChatSink func(line string)

// Router holds references to every component an inbound frame might need
// to reach.
type Router struct {
	store    *membership.Store
	pool     *transport.SendPool
	election *election.Engine
	log      *log.Logger
	chatSink ChatSink
}

// New creates a Router.
func New(store *membership.Store, pool *transport.SendPool, el *election.Engine, chatSink ChatSink, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{store: store, pool: pool, election: el, chatSink: chatSink, log: logger}
}

// Handle is the transport.Handler entry point: parse raw bytes into a
// Frame and dispatch. conn is kept open only long enough to write a JOIN
// reply; transport.Listener closes it afterward.
func (r *Router) Handle(conn net.Conn, raw []byte) {
	frame, err := wire.Parse(string(raw))
	if err != nil {
		r.log.Printf("malformed frame dropped: %v", err)
		return
	}
	r.dispatch(frame, conn)
}

func (r *Router) dispatch(f wire.Frame, conn net.Conn) {
	switch f.Verb {
	case wire.VerbJoin:
		r.handleJoin(f, conn)
	case wire.VerbUpdate:
		r.store.ApplySnapshot(f.Members)
		metrics.MembershipSize.Set(float64(len(r.store.Members())))
	case wire.VerbMapUpdate:
		r.store.ReplaceMaps(f.Ids, f.Names)
		r.store.Emit(membership.EventSystem, "id and name maps updated")
	case wire.VerbHeartbeat:
		heartbeat.HandleHeartbeat(r.store, f.Addr, time.Now())
	case wire.VerbElection:
		r.election.HandleElection(f.SenderId)
	case wire.VerbCoordinator:
		r.election.HandleCoordinator(f.Addr, f.Name)
	case wire.VerbStartElection:
		r.election.HandleStartElection()
	case wire.VerbRemoveCoordinator:
		r.store.RemovePeer(f.Addr)
	case wire.VerbExit:
		r.handleExit(f)
	default:
		if r.chatSink != nil {
			r.chatSink(f.Text)
		}
	}
}

// handleJoin implements spec.md §4.4 step 2 and §4.9's JOIN row: admit
// the new peer, assign-then-announce (per the Open Question resolution
// in spec.md §9), reply on the open connection, then run the admission
// fan-out (UPDATE + MAP_UPDATE) to every other member.
func (r *Router) handleJoin(f wire.Frame, conn net.Conn) {
	id, added := r.store.AddPeer(f.Addr, f.Name)
	if added {
		r.store.Emit(membership.EventSystem, "new peer added: %s (%s)", f.Name, f.Addr)
		r.store.Emit(membership.EventSystem, "assigned id %d to %s (%s)", id, f.Name, f.Addr)
	}

	reply, err := wire.EncodeJoinReply(id, r.store.Members())
	if err != nil {
		r.log.Printf("encode JOIN reply: %v", err)
		return
	}
	if _, err := conn.Write(reply); err != nil {
		r.log.Printf("write JOIN reply to %s: %v", f.Addr, err)
	}

	if added {
		r.admissionFanOut(f.Addr, f.Name)
	}
}

// admissionFanOut sends UPDATE (full member list) and MAP_UPDATE
// (full id+name maps) to every peer but self, including the newcomer
// itself, per spec.md §4.4 step 2. The arrival is announced only locally,
// through the SystemEvents handleJoin emits; no announcement line is sent
// to the other peers. The newcomer must receive its own entry in idOf/nameOf this way,
// since JoinAccepted only seeds members from the JOIN reply
// (original_source/peer.py's notificar_peers/enviar_mapas_para_peers
// both loop over self.peers, skipping only the coordinator's own
// address).
func (r *Router) admissionFanOut(newcomer membership.Addr, name string) {
	self := r.store.Self()
	members := r.store.Members()

	updateFrame, err := wire.Encode(wire.Frame{Verb: wire.VerbUpdate, Members: members})
	if err != nil {
		r.log.Printf("encode UPDATE: %v", err)
		return
	}
	mapFrame, err := wire.Encode(wire.Frame{Verb: wire.VerbMapUpdate, Ids: r.store.IdMap(), Names: r.store.NameMap()})
	if err != nil {
		r.log.Printf("encode MAP_UPDATE: %v", err)
		return
	}

	for _, p := range members {
		if p == self {
			continue
		}
		r.pool.Send(transport.AddrString(p), []byte(updateFrame))
		r.pool.Send(transport.AddrString(p), []byte(mapFrame))
	}
	metrics.MembershipSize.Set(float64(len(members)))
}

// handleExit implements spec.md §4.9's EXIT row: drop the sender; if the
// receiver is the coordinator, re-fan the new UPDATE.
func (r *Router) handleExit(f wire.Frame) {
	r.store.RemovePeer(f.Addr)
	r.store.Emit(membership.EventSystem, "peer left: %s (%s)", f.Name, f.Addr)

	if r.store.Role() != membership.RoleCoordinator {
		return
	}
	members := r.store.Members()
	updateFrame, err := wire.Encode(wire.Frame{Verb: wire.VerbUpdate, Members: members})
	if err != nil {
		r.log.Printf("encode UPDATE: %v", err)
		return
	}
	self := r.store.Self()
	for _, p := range members {
		if p == self {
			continue
		}
		r.pool.Send(transport.AddrString(p), []byte(updateFrame))
	}
}
