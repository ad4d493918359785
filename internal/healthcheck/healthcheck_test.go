package healthcheck

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAliveAgainstServePingPong(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	go ServePingPong(addr, nil)

	// Give the responder a moment to bind.
	require.Eventually(t, func() bool {
		checker := NewChecker()
		return checker.IsAlive("127.0.0.1", port)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestIsAliveFalseWhenNothingListens(t *testing.T) {
	checker := NewChecker()
	assert.False(t, checker.IsAlive("127.0.0.1", 1))
}
