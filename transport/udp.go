package transport

import (
	"context"
	"fmt"
	"net"

	"fdnode/logger"
	"fdnode/peer"
)

// maxDatagramSize bounds the receive buffer to the largest UDP payload
// that is guaranteed to fit in one IPv4 datagram without fragmentation
// bookkeeping of our own. Per spec.md §4.1, messages larger than this are
// undefined behavior for this transport.
const maxDatagramSize = 65507

// UDP is the lossy, one-message-per-packet transport variant.
type UDP struct {
	addr peer.Endpoint
	conn *net.UDPConn
}

// NewUDP binds a UDP socket at addr.
func NewUDP(addr peer.Endpoint) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("transport: resolve udp addr %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp %s: %w", addr, err)
	}
	bound := udpAddrToEndpoint(conn.LocalAddr().(*net.UDPAddr))
	return &UDP{addr: bound, conn: conn}, nil
}

func (u *UDP) LocalAddr() peer.Endpoint { return u.addr }

// Send writes payload as a single datagram. Failures are logged and
// swallowed: the caller (a detector's report-health loop) must keep
// ticking regardless.
func (u *UDP) Send(to peer.Endpoint, payload []byte) error {
	raddr, err := net.ResolveUDPAddr("udp", to.String())
	if err != nil {
		logger.Debugf("transport(udp): resolve %s: %v", to, err)
		return nil
	}
	if _, err := u.conn.WriteToUDP(payload, raddr); err != nil {
		logger.Debugf("transport(udp): send to %s: %v", to, err)
	}
	return nil
}

// Serve reads datagrams until ctx is cancelled or the socket is closed.
// A read error (including the one Close() itself causes) ends the loop;
// a decode/process error for one packet never does, since Serve hands
// the payload to process without interpreting it.
func (u *UDP) Serve(ctx context.Context, process ProcessFunc) error {
	buf := make([]byte, maxDatagramSize)
	go func() {
		<-ctx.Done()
		u.conn.Close()
	}()
	for {
		n, raddr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			logger.Debugf("transport(udp): read: %v", err)
			return nil
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		from := udpAddrToEndpoint(raddr)
		process(payload, from)
	}
}

func (u *UDP) Close() error {
	return u.conn.Close()
}

func udpAddrToEndpoint(addr *net.UDPAddr) peer.Endpoint {
	return peer.Endpoint{Host: addr.IP.String(), Port: addr.Port}
}

