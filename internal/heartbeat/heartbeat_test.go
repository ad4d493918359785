package heartbeat

import (
	"log"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

func addr(port uint16) membership.Addr {
	return membership.Addr{Host: "127.0.0.1", Port: port}
}

func recordingListener(t *testing.T) (membership.Addr, <-chan string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	received := make(chan string, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 256)
			n, _ := conn.Read(buf)
			received <- string(buf[:n])
			conn.Close()
		}
	}()
	tcpAddr := ln.Addr().(*net.TCPAddr)
	return membership.Addr{Host: "127.0.0.1", Port: uint16(tcpAddr.Port)}, received, func() { ln.Close() }
}

func TestTickFromCoordinatorFansOutToAllOtherMembers(t *testing.T) {
	peerAddr, received, closeFn := recordingListener(t)
	defer closeFn()

	store := membership.New(addr(9200), "Alice")
	store.BecomeFoundingCoordinator()
	store.AddPeer(peerAddr, "Bob")

	pool := transport.NewSendPool(2, 8)
	defer pool.Close()
	e := New(store, pool, log.Default())

	e.tick()

	select {
	case msg := <-received:
		assert.Contains(t, msg, "HEARTBEAT")
	case <-time.After(time.Second):
		t.Fatal("expected a HEARTBEAT frame to reach the member")
	}
}

func TestTickFromMemberSendsOnlyToCoordinator(t *testing.T) {
	coordAddr, received, closeFn := recordingListener(t)
	defer closeFn()

	store := membership.New(addr(9201), "Bob")
	store.JoinAccepted(1, []membership.Addr{coordAddr}, coordAddr)

	pool := transport.NewSendPool(2, 8)
	defer pool.Close()
	e := New(store, pool, log.Default())

	e.tick()

	select {
	case msg := <-received:
		assert.Contains(t, msg, "HEARTBEAT")
	case <-time.After(time.Second):
		t.Fatal("expected a HEARTBEAT frame to reach the coordinator")
	}
}

func TestHandleHeartbeatRecordsSenderUnconditionally(t *testing.T) {
	store := membership.New(addr(9202), "Carol")
	before := time.Now()

	HandleHeartbeat(store, addr(9999), before)

	seen, ok := store.LastSeen(addr(9999))
	assert.True(t, ok)
	assert.Equal(t, before, seen)
}
