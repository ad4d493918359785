package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
)

func TestBindThenServeDeliversFramesToHandler(t *testing.T) {
	l := NewListener("127.0.0.1:0", MaxFrameSizeForTest, nil)
	require.NoError(t, l.Bind())

	received := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go l.Serve(ctx, func(conn net.Conn, raw []byte) {
		received <- string(raw)
		conn.Close()
	})

	_, ok := Dial(l.addr, []byte("HELLO"), false)
	assert.True(t, ok)

	select {
	case msg := <-received:
		assert.Equal(t, "HELLO", msg)
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestBindReturnsErrorOnAddressInUse(t *testing.T) {
	first := NewListener("127.0.0.1:0", MaxFrameSizeForTest, nil)
	require.NoError(t, first.Bind())
	defer first.ln.Close()

	second := NewListener(first.addr, MaxFrameSizeForTest, nil)
	err := second.Bind()
	assert.Error(t, err)
}

func TestDialUnreachableAddrFails(t *testing.T) {
	_, ok := Dial("127.0.0.1:1", []byte("x"), false)
	assert.False(t, ok)
}

func TestDialAwaitReplyReturnsServerResponse(t *testing.T) {
	l := NewListener("127.0.0.1:0", MaxFrameSizeForTest, nil)
	require.NoError(t, l.Bind())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go l.Serve(ctx, func(conn net.Conn, raw []byte) {
		conn.Write([]byte("REPLY"))
		conn.Close()
	})

	reply, ok := Dial(l.addr, []byte("PING"), true)
	require.True(t, ok)
	assert.Equal(t, "REPLY", string(reply))
}

func TestAddrString(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9000", AddrString(membership.Addr{Host: "127.0.0.1", Port: 9000}))
}

// MaxFrameSizeForTest keeps these tests independent of internal/wire's
// MaxFrameSize constant, so they do not import internal/wire.
const MaxFrameSizeForTest = 4096
