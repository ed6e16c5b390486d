// Package transport sends and receives the raw bytes that wire.Message
// values are encoded into. It never looks inside those bytes — decoding
// happens one layer up, in the node router — it only knows how to get
// bytes to a (host, port) and how to hand inbound bytes, tagged with the
// sender's endpoint, to a callback.
//
// Two implementations are provided, matching spec.md §4.1: UDP (lossy,
// one message per datagram) and TCP (a length-prefixed stream). Both
// follow the same lifecycle shape as the teacher repo's transport.GRPC:
// a constructor that binds its address, a Serve that runs the receive
// loop and blocks until it stops, and a Close that unblocks Serve.
package transport

import (
	"context"

	"fdnode/peer"
)

// ProcessFunc receives one fully-reassembled inbound payload and the
// endpoint it arrived from. It must not block for long: both transport
// implementations call it synchronously from the receive loop.
type ProcessFunc func(payload []byte, from peer.Endpoint)

// Transport is the capability every failure detector, the gossip
// decorator, and the consensus engine share a reference to for sending,
// and that the node router drives for receiving.
type Transport interface {
	// Send encodes nothing itself — callers pass already-encoded bytes —
	// and never returns a "the peer is unreachable" error to worry about:
	// transport failures are logged internally and swallowed, per
	// spec.md §4.1's "this is deliberate: detectors must tolerate
	// transient send errors."
	Send(to peer.Endpoint, payload []byte) error

	// Serve runs the receive loop until ctx is cancelled or Close is
	// called. It returns once the loop has stopped; errors from
	// individual frames never terminate it early.
	Serve(ctx context.Context, process ProcessFunc) error

	// LocalAddr is the endpoint this transport is bound to.
	LocalAddr() peer.Endpoint

	// Close unblocks any in-progress Serve and releases the underlying
	// socket or listener.
	Close() error
}
