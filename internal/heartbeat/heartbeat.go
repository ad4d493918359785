// Package heartbeat implements the periodic liveness beacon described in
// spec.md §4.6, generalizing the teacher's sendHeartbeats ticker loop
// (internal/election/bully.go) from a fixed fan-out-to-all-replicas
// pattern to the spec's two directional modes.
package heartbeat

import (
	"context"
	"log"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/metrics"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/wire"
)

// Interval is the beacon period (spec.md §4.6: "every 5 s").
const Interval = 5 * time.Second

// Engine emits HEARTBEAT frames on a ticker, in the direction dictated
// by the store's current role at each tick: coordinators fan out to
// every other member, members send to coordAddr only.
type Engine struct {
	store *membership.Store
	pool  *transport.SendPool
	log   *log.Logger
}

// New creates a heartbeat Engine.
func New(store *membership.Store, pool *transport.SendPool, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{store: store, pool: pool, log: logger}
}

// Run ticks every Interval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.tick()
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) tick() {
	self := e.store.Self()
	frame, err := wire.Encode(wire.Frame{Verb: wire.VerbHeartbeat, Addr: self})
	if err != nil {
		e.log.Printf("encode HEARTBEAT: %v", err)
		return
	}

	if e.store.Role() == membership.RoleCoordinator {
		for _, p := range e.store.Members() {
			if p == self {
				continue
			}
			e.pool.Send(transport.AddrString(p), []byte(frame))
			metrics.HeartbeatsSent.Inc()
		}
		return
	}

	coord, ok := e.store.CoordAddr()
	if !ok {
		return
	}
	e.pool.Send(transport.AddrString(coord), []byte(frame))
	metrics.HeartbeatsSent.Inc()
}

// HandleHeartbeat records the sender's liveness unconditionally, per
// spec.md §4.6: "heartbeats from non-members are accepted".
func HandleHeartbeat(store *membership.Store, sender membership.Addr, now time.Time) {
	store.RecordHeartbeat(sender, now)
	metrics.HeartbeatsReceived.Inc()
}
