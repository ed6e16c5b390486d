// Package detector implements the family of failure-detector algorithms:
// ping/ack, four heartbeat variants, and a gossip decorator that layers
// suspect-set propagation atop any of them. Every variant shares the
// Detector capability set below, mirroring the teacher repo's
// interface-with-concrete-variants shape (gossip.GossipState /
// HeartbeatState) but generalized to failure detection rather than
// Cassandra-style state dissemination.
package detector

import (
	"context"
	"time"

	"fdnode/peer"
	"fdnode/transport"
	"fdnode/wire"
)

// FailureCallback fires exactly once per healthy→suspected transition
// found by a detector's own failure check. Suspects injected through
// AddSuspects do not fire it, and recovery never calls it.
type FailureCallback func(n peer.Endpoint)

// LearnNeighborFunc is invoked by a detector's ReceiveMessage before
// handling, for any sender not already known to the node.
type LearnNeighborFunc func(n peer.Endpoint)

// Detector is the common capability set every failure-detector variant
// and the gossip decorator implement, per spec.md §4.3.
type Detector interface {
	// Initialize wires in the transport and the initial neighbor set and
	// prepares per-peer records. Must be called before DetectFailures.
	Initialize(tr transport.Transport, neighbors []peer.Endpoint)

	// DetectFailures spawns the periodic background workflows (report
	// health, detect failures, and — for the gossip decorator — gossip)
	// and returns once they have been launched; it never blocks.
	DetectFailures(ctx context.Context)

	// ReceiveMessage tries to consume msg as one of this detector's own
	// wire types, reporting any previously-unknown sender via learn
	// before handling. Reports whether it consumed the message.
	ReceiveMessage(msg wire.Message, from peer.Endpoint, learn LearnNeighborFunc) bool

	// AddNeighbor introduces a new peer (idempotent) and initializes its
	// health record.
	AddNeighbor(n peer.Endpoint)

	// AddSuspects bulk-injects suspects, used by the gossip decorator.
	// Self is always excluded; already-present suspects are ignored.
	AddSuspects(suspects []peer.Endpoint)

	// SuspectedList returns a snapshot of the current suspect set.
	SuspectedList() []peer.Endpoint
}

// Clock abstracts wall-clock reads so timeout math can be driven
// deterministically in tests, per spec.md §9's "may also expose an
// injectable clock for tests."
type Clock interface {
	NowMillis() int64
}

// systemClock is the default Clock, backed by time.Now.
type systemClock struct{}

func (systemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// SystemClock is the Clock every production detector constructor
// defaults to when none is supplied.
var SystemClock Clock = systemClock{}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func containsEndpoint(list []peer.Endpoint, e peer.Endpoint) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}
