// Package transport accepts inbound short-lived TCP connections and opens
// outbound ones, one message per connection, exactly as spec.md §4.2
// describes. It is the direct generalization of the teacher's
// startServer/handleConnection/sendMessage trio in
// internal/election/bully.go.
package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
)

const (
	// DialTimeout bounds outbound connect attempts (spec.md §4.2: "≤5s").
	DialTimeout = 5 * time.Second
	// ReplyTimeout bounds the optional reply read for awaitReply sends.
	ReplyTimeout = 5 * time.Second
)

// Handler is invoked once per accepted connection with the raw frame
// bytes already bounded to MaxFrameSize. conn is left open so a JOIN
// handler can write a reply before the caller closes it.
type Handler func(conn net.Conn, raw []byte)

// Listener runs the accept loop described in spec.md §4.2.
type Listener struct {
	addr       string
	maxFrame   int64
	log        *log.Logger
	ln         net.Listener
}

// NewListener creates a Listener for addr; the socket is opened by Bind
// (or by Serve, if Bind was not called). maxFrame bounds each
// accepted connection's read, per the REDESIGN FLAGS "unbounded reads"
// item.
func NewListener(addr string, maxFrame int64, logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.Default()
	}
	return &Listener{addr: addr, maxFrame: maxFrame, log: logger}
}

// Bind opens the listening socket synchronously, so a caller can detect
// a bind failure before starting any dependent loop (spec.md §7: "Bind
// failure at startup: fatal").
func (l *Listener) Bind() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.addr, err)
	}
	l.ln = ln
	l.addr = ln.Addr().String()
	l.log.Printf("listening on %s", l.addr)
	return nil
}

// Serve accepts connections on an already-Bind'd socket until ctx is
// canceled, dispatching each to handle on its own goroutine. If Bind has
// not been called yet, Serve calls it first.
func (l *Listener) Serve(ctx context.Context, handle Handler) error {
	if l.ln == nil {
		if err := l.Bind(); err != nil {
			return err
		}
	}
	ln := l.ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			l.log.Printf("accept error: %v", err)
			continue
		}
		go l.handleConn(conn, handle)
	}
}

func (l *Listener) handleConn(conn net.Conn, handle Handler) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(ReplyTimeout))
	limited := io.LimitReader(conn, l.maxFrame)
	buf, err := io.ReadAll(limited)
	if err != nil && len(buf) == 0 {
		l.log.Printf("read error from %s: %v", conn.RemoteAddr(), err)
		return
	}
	if len(buf) == 0 {
		return
	}
	conn.SetReadDeadline(time.Time{})
	handle(conn, buf)
}

// Dial opens a connection to addr, writes frame, and (if awaitReply)
// reads and returns one reply within ReplyTimeout. All failures are
// swallowed into (nil, false): per spec.md §4.2 and §7, the Failure
// Detector — not the sender — is the arbiter of liveness.
func Dial(addr string, frame []byte, awaitReply bool) ([]byte, bool) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, false
	}
	defer conn.Close()

	if _, err := conn.Write(frame); err != nil {
		return nil, false
	}

	if !awaitReply {
		return nil, true
	}

	// Half-close the write side so the peer's io.ReadAll sees EOF right
	// after this frame instead of blocking until it hits maxFrame or this
	// dial's own ReplyTimeout — both sides otherwise wait on each other
	// forever over one full-duplex TCP connection.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(ReplyTimeout))
	reply, err := io.ReadAll(conn)
	if err != nil && len(reply) == 0 {
		return nil, false
	}
	return reply, true
}

// AddrString renders a membership.Addr as a dialable "host:port" string.
func AddrString(a membership.Addr) string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
