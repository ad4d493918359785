package join

import (
	"log"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/wire"
)

func addr(port uint16) membership.Addr {
	return membership.Addr{Host: "127.0.0.1", Port: port}
}

func TestJoinWithNilBootstrapFoundsNetwork(t *testing.T) {
	store := membership.New(addr(9500), "Alice")
	Join(store, nil, log.Default())

	assert.Equal(t, membership.Id(0), store.SelfId())
	assert.Equal(t, membership.RoleCoordinator, store.Role())
}

func TestJoinWithUnreachableBootstrapFallsBackToFounding(t *testing.T) {
	store := membership.New(addr(9501), "Bob")
	unreachable := addr(1) // nothing listens here in a test sandbox

	Join(store, &unreachable, log.Default())

	assert.Equal(t, membership.RoleCoordinator, store.Role())
}

func TestJoinWithReachableBootstrapAdoptsReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 512)
		conn.Read(buf)
		reply, _ := wire.EncodeJoinReply(3, []membership.Addr{addr(9000)})
		conn.Write(reply)
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	bootstrap := membership.Addr{Host: "127.0.0.1", Port: uint16(tcpAddr.Port)}

	store := membership.New(addr(9502), "Carol")
	Join(store, &bootstrap, log.Default())

	assert.Equal(t, membership.Id(3), store.SelfId())
	assert.Equal(t, membership.RoleMember, store.Role())
	coord, ok := store.CoordAddr()
	assert.True(t, ok)
	assert.Equal(t, bootstrap, coord)
}
