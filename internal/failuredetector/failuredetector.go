// Package failuredetector watches the coordinator's heartbeat freshness
// and triggers an election on timeout, per spec.md §4.7. It generalizes
// the teacher's monitorElectionTimeout loop (internal/election/bully.go,
// 1s poll / 6s timeout) to the spec's parameters (2s poll / 10s timeout /
// 5s post-trigger damping sleep) and its extra membership-mutation steps.
package failuredetector

import (
	"context"
	"log"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/metrics"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/wire"
)

const (
	// PollInterval is how often freshness is checked (spec.md §4.7: "every 2s").
	PollInterval = 2 * time.Second
	// SuspicionThreshold is the max tolerated gap since the last heartbeat
	// before the coordinator is suspected (spec.md §4.7: "exceeds 10 s").
	SuspicionThreshold = 10 * time.Second
	// DampingSleep is slept after a trigger to avoid retrigger storms
	// (spec.md §4.7: "Sleep 5 s before resuming checks").
	DampingSleep = 5 * time.Second
)

// Elector is the subset of election.Engine the detector needs, kept as
// an interface to avoid a failuredetector<->election import cycle.
type Elector interface {
	Begin()
}

// Detector runs the failure-detection loop against a membership.Store.
type Detector struct {
	store   *membership.Store
	pool    *transport.SendPool
	elector Elector
	log     *log.Logger

	now func() time.Time
}

// New creates a Detector.
func New(store *membership.Store, pool *transport.SendPool, elector Elector, logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.Default()
	}
	return &Detector{store: store, pool: pool, elector: elector, log: logger, now: time.Now}
}

// Run polls every PollInterval until ctx is canceled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if d.checkAndMaybeTrigger(ctx) {
				select {
				case <-time.After(DampingSleep):
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// checkAndMaybeTrigger runs a single check. It returns true if a trigger
// fired (so Run knows to apply the damping sleep).
func (d *Detector) checkAndMaybeTrigger(ctx context.Context) bool {
	if d.store.Role() == membership.RoleCoordinator {
		// The coordinator doesn't monitor itself.
		return false
	}
	coord, ok := d.store.CoordAddr()
	if !ok {
		return false
	}
	last, seen := d.store.LastSeen(coord)
	if !seen {
		// Bootstrap grace, per spec.md §4.7.
		return false
	}
	gap := d.now().Sub(last)
	if gap <= SuspicionThreshold {
		return false
	}

	d.store.Emit(membership.EventAlerta, "coordinator inactive detected")
	metrics.FailureDetections.Inc()

	d.store.RemovePeer(coord)

	frame, err := wire.Encode(wire.Frame{Verb: wire.VerbRemoveCoordinator, Addr: coord})
	if err != nil {
		d.log.Printf("encode REMOVE_COORDINATOR: %v", err)
	} else {
		for _, p := range d.store.Members() {
			if p == d.store.Self() {
				continue
			}
			d.pool.Send(transport.AddrString(p), []byte(frame))
		}
	}

	d.elector.Begin()
	return true
}
