package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"fdnode/logger"
	"fdnode/peer"
)

// TCP is the length-prefixed stream transport variant. Each message is
// framed as a 4-byte native-endian length prefix followed by exactly that
// many payload bytes, per spec.md §6. Unlike a long-lived RPC connection,
// this transport dials a short-lived connection per Send — there is no
// persistent per-peer session to keep alive, consistent with this
// system's "no persistence, tolerate transient failures" design.
type TCP struct {
	addr     peer.Endpoint
	listener net.Listener
}

// NewTCP binds a TCP listener at addr.
func NewTCP(addr peer.Endpoint) (*TCP, error) {
	lis, err := net.Listen("tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp %s: %w", addr, err)
	}
	bound := tcpAddrToEndpoint(lis.Addr())
	return &TCP{addr: bound, listener: lis}, nil
}

func (t *TCP) LocalAddr() peer.Endpoint { return t.addr }

// Send dials to, writes the length-prefixed frame, and closes. Failures
// are logged and swallowed per spec.md §4.1.
func (t *TCP) Send(to peer.Endpoint, payload []byte) error {
	conn, err := net.DialTimeout("tcp", to.String(), 2*time.Second)
	if err != nil {
		logger.Debugf("transport(tcp): dial %s: %v", to, err)
		return nil
	}
	defer conn.Close()

	var header [4]byte
	binary.NativeEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := conn.Write(header[:]); err != nil {
		logger.Debugf("transport(tcp): write header to %s: %v", to, err)
		return nil
	}
	if _, err := conn.Write(payload); err != nil {
		logger.Debugf("transport(tcp): write payload to %s: %v", to, err)
	}
	return nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, handling each on its own goroutine.
func (t *TCP) Serve(ctx context.Context, process ProcessFunc) error {
	go func() {
		<-ctx.Done()
		t.listener.Close()
	}()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			logger.Debugf("transport(tcp): accept: %v", err)
			return nil
		}
		go t.handleConn(conn, process)
	}
}

// handleConn reads every frame a connection carries before giving up —
// a sender may write several messages over one dialed connection.
func (t *TCP) handleConn(conn net.Conn, process ProcessFunc) {
	defer conn.Close()
	from := tcpAddrToEndpoint(conn.RemoteAddr())
	for {
		var header [4]byte
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return
		}
		size := binary.NativeEndian.Uint32(header[:])
		payload := make([]byte, size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			logger.Debugf("transport(tcp): short read from %s: %v", from, err)
			return
		}
		process(payload, from)
	}
}

func (t *TCP) Close() error {
	return t.listener.Close()
}

func tcpAddrToEndpoint(addr net.Addr) peer.Endpoint {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return peer.Endpoint{Host: tcpAddr.IP.String(), Port: tcpAddr.Port}
	}
	return peer.Endpoint{Host: addr.String()}
}
