package failuredetector

import (
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

func addr(port uint16) membership.Addr {
	return membership.Addr{Host: "127.0.0.1", Port: port}
}

type fakeElector struct {
	called int
}

func (f *fakeElector) Begin() { f.called++ }

func newTestDetector(store *membership.Store, elector Elector, now func() time.Time) *Detector {
	pool := transport.NewSendPool(1, 4)
	d := New(store, pool, elector, log.Default())
	d.now = now
	return d
}

func TestCoordinatorNeverMonitorsItself(t *testing.T) {
	store := membership.New(addr(9300), "Alice")
	store.BecomeFoundingCoordinator()

	elector := &fakeElector{}
	d := newTestDetector(store, elector, time.Now)

	triggered := d.checkAndMaybeTrigger(nil)

	assert.False(t, triggered)
	assert.Zero(t, elector.called)
}

func TestBootstrapGraceWhenNoHeartbeatEverSeen(t *testing.T) {
	store := membership.New(addr(9301), "Bob")
	store.JoinAccepted(1, []membership.Addr{addr(9300)}, addr(9300))

	elector := &fakeElector{}
	d := newTestDetector(store, elector, time.Now)

	triggered := d.checkAndMaybeTrigger(nil)

	assert.False(t, triggered)
	assert.Zero(t, elector.called)
}

func TestNoTriggerWithinThreshold(t *testing.T) {
	store := membership.New(addr(9302), "Carol")
	store.JoinAccepted(1, []membership.Addr{addr(9300)}, addr(9300))
	store.RecordHeartbeat(addr(9300), time.Now())

	elector := &fakeElector{}
	d := newTestDetector(store, elector, time.Now)

	triggered := d.checkAndMaybeTrigger(nil)

	assert.False(t, triggered)
	assert.Zero(t, elector.called)
}

func TestTriggersElectionAndRemovesCoordinatorPastThreshold(t *testing.T) {
	store := membership.New(addr(9303), "Dave")
	store.JoinAccepted(1, []membership.Addr{addr(9300)}, addr(9300))
	stale := time.Now().Add(-(SuspicionThreshold + time.Second))
	store.RecordHeartbeat(addr(9300), stale)

	elector := &fakeElector{}
	d := newTestDetector(store, elector, time.Now)

	triggered := d.checkAndMaybeTrigger(nil)

	assert.True(t, triggered)
	assert.Equal(t, 1, elector.called)
	assert.NotContains(t, store.Members(), addr(9300))
}
