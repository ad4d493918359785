// Package peer wires together the Membership Store, Transport, Election
// Engine, Heartbeat Engine, Failure Detector, Join Protocol, Router, and
// Departure Handler into a single running peer process, per spec.md §2's
// component list. It is the Go-native analogue of original_source/peer.py's
// Peer class, restructured per spec.md §5's concurrency model: one
// goroutine per concurrent activity, a single mutex-guarded Membership
// Store, and an explicit context.Context for teardown instead of the
// Python prototypes' implicit "runs until process exit" loops.
package peer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/departure"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/election"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/failuredetector"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/heartbeat"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/join"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/router"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/ui"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/wire"
)

const (
	sendPoolWorkers = 8
	sendPoolQueue   = 256
)

// Peer ties every core component to one running process.
type Peer struct {
	Store *membership.Store

	instanceUUID uuid.UUID

	listener *transport.Listener
	pool     *transport.SendPool
	election *election.Engine
	detector *failuredetector.Detector
	hb       *heartbeat.Engine
	departH  *departure.Handler
	router   *router.Router

	log *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Peer for self/selfName, but does not yet bind or start
// any loops — call Start for that.
func New(self membership.Addr, selfName string, logger *log.Logger) *Peer {
	if logger == nil {
		logger = log.New(os.Stderr, fmt.Sprintf("[%s] ", selfName), log.LstdFlags)
	}

	store := membership.New(self, selfName)
	pool := transport.NewSendPool(sendPoolWorkers, sendPoolQueue)

	p := &Peer{
		Store:        store,
		instanceUUID: uuid.New(),
		pool:         pool,
		log:          logger,
	}

	p.election = election.New(store, pool, logger, p.onBecomeCoordinator)
	p.detector = failuredetector.New(store, pool, p.election, logger)
	p.hb = heartbeat.New(store, pool, logger)
	p.departH = departure.New(store, pool, logger)
	p.router = router.New(store, pool, p.election, p.deliverChat, logger)
	p.listener = transport.NewListener(transport.AddrString(self), wire.MaxFrameSize, logger)

	logger.Printf("process instance %s starting as %s", p.instanceUUID, selfName)

	return p
}

// InstanceUUID identifies this process's lifetime, distinguishing log
// lines across a crash/restart on the same host:port.
func (p *Peer) InstanceUUID() uuid.UUID {
	return p.instanceUUID
}

// deliverChat forwards an unrecognized frame to the UI collaborator as a
// chat SystemEvent, per spec.md §4.9's fallthrough row.
func (p *Peer) deliverChat(line string) {
	p.Store.Emit(membership.EventChat, line)
}

// onBecomeCoordinator is the election Engine's hook after a win. It does
// not start a loop: the Heartbeat Engine started in Start branches on role
// at every tick, so the existing Run goroutine switches to the
// coordinator's fan-out direction by itself (spec.md §4.5 step 4).
func (p *Peer) onBecomeCoordinator() {
	// No-op: heartbeat.Engine.Run, started once in Start, already
	// re-evaluates role on every tick. Kept as an explicit hook point so
	// future coordinator-only startup work (e.g. priming nextId) has a
	// home without threading more state through election.Engine.
}

// Start binds the Transport listener, runs the Join Protocol (or founds
// a new network), and launches the Heartbeat and Failure Detector loops.
// It returns once the listener is bound; background loops continue on
// their own goroutines until ctx is canceled.
func (p *Peer) Start(ctx context.Context, bootstrap *membership.Addr) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if err := p.listener.Bind(); err != nil {
		cancel()
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.listener.Serve(runCtx, p.router.Handle); err != nil {
			p.log.Printf("listener stopped: %v", err)
		}
	}()

	if p.Store.SelfId() != membership.NoId {
		// A static seed roster (config.ApplySeedRoster) already populated
		// membership and this peer's own id before Start was called;
		// derive role from it instead of running the network Join
		// Protocol, which would otherwise discard the seeded view (a nil
		// bootstrap, in particular, would re-found the network from
		// scratch via BecomeFoundingCoordinator).
		p.Store.AssumeSeededRole()
		p.log.Printf("seeded role: %s", p.Store.Role())
	} else {
		join.Join(p.Store, bootstrap, p.log)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.hb.Run(runCtx)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.detector.Run(runCtx)
	}()

	return nil
}

// Stop cancels all background loops and waits for them to exit.
func (p *Peer) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.pool.Close()
}

// Exit runs the Coordinator Departure Handler or the plain member exit
// path, per spec.md §4.8, depending on the peer's current role.
func (p *Peer) Exit() {
	if p.Store.Role() == membership.RoleCoordinator {
		p.departH.DepartCoordinator()
		return
	}
	p.departH.DepartMember()
}

// HandleUserLine processes one line of input from the UI collaborator,
// per spec.md §6. It does not reject reserved words itself: the caller is
// expected to have already rejected every line for which wire.IsReserved
// reports true, except the bare EXIT command. LIST renders membership, EXIT
// triggers the Departure Handler, anything else is broadcast as chat and
// echoed back to the sender as "Você [<id>]: <text>" per spec.md §6.
func (p *Peer) HandleUserLine(line string) []string {
	switch line {
	case "EXIT":
		p.Exit()
		return nil
	case "LIST":
		return p.listMembers()
	default:
		return []string{p.broadcastChat(line)}
	}
}

func (p *Peer) listMembers() []string {
	snap := p.Store.Snap()
	out := make([]string, 0, len(snap.Members))
	for _, addr := range snap.Members {
		name := snap.NameOf[addr]
		if name == "" {
			name = "Unknown"
		}
		id, ok := snap.IdOf[addr]
		if !ok {
			id = membership.NoId
		}
		out = append(out, formatListEntry(name, id, addr))
	}
	return out
}

func formatListEntry(name string, id membership.Id, addr membership.Addr) string {
	return fmt.Sprintf("%s [%d] -> %s", name, int(id), addr)
}

// broadcastChat fans a plain chat line out to every other member,
// formatted as "<name> [<id>]: <text>" per spec.md §6, the Go-native
// equivalent of original_source/peer.py's broadcast(). It returns the
// same line rendered for local display, using "Você" instead of the
// sender's own name, so the caller can echo it to the sender's own
// terminal.
func (p *Peer) broadcastChat(text string) string {
	self := p.Store.Self()
	name := p.Store.SelfName()
	id := p.Store.SelfId()
	wireLine := ui.FormatChatLine(name, id, text, false)

	for _, addr := range p.Store.Members() {
		if addr == self {
			continue
		}
		p.pool.Send(transport.AddrString(addr), []byte(wireLine))
	}
	return ui.FormatChatLine(name, id, text, true)
}
