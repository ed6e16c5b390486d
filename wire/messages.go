package wire

import "fdnode/peer"

// Ping is the active probe sent by the ping-ack detector (spec.md §4.3.1).
// From carries the sender's own listening endpoint: the TCP transport
// dials a fresh, short-lived connection per Send (transport/tcp.go), so
// the connection's observed remote address is an ephemeral port, not
// the sender's listening port — a reply can only reach the sender back
// by using From, never the transport-reported source address.
type Ping struct {
	MessageID string
	From      peer.Endpoint
}

func (Ping) Kind() string { return "Ping" }

// Ack answers a Ping. InResponse carries the probe's MessageID so the
// sender could in principle correlate round-trips; this implementation
// does not need that correlation (it only cares about "an ack arrived"),
// but the field is kept because spec.md §6 names it as part of the wire
// format. From carries the sender's own listening endpoint, for the same
// reason Ping.From does.
type Ack struct {
	MessageID  string
	InResponse string
	From       peer.Endpoint
}

func (Ack) Kind() string { return "Ack" }

// Heartbeat is the passive "I am alive" message every heartbeat-family
// detector broadcasts (spec.md §4.3.2–§4.3.5). From carries the sender's
// own listening endpoint, for the same reason Ping.From does; liveness
// is otherwise inferred purely from arrival time.
type Heartbeat struct {
	From peer.Endpoint
}

func (Heartbeat) Kind() string { return "Heartbeat" }

// SuspectListMessage is the gossip decorator's periodic broadcast of its
// inner detector's suspect set (spec.md §4.3.6). From carries the
// sender's own listening endpoint, for the same reason Ping.From does.
type SuspectListMessage struct {
	Suspects []peer.Endpoint
	From     peer.Endpoint
}

func (SuspectListMessage) Kind() string { return "SuspectList" }

// Preference is a node's candidate value proposed to a round's
// coordinator (spec.md §4.4).
type Preference struct {
	Round      uint64
	Preference Value
	Timestamp  int64 // UTC milliseconds; breaks ties across processes
}

func (Preference) Kind() string { return "Preference" }

// CoordinatorPreference is the coordinator's chosen winner for a round,
// broadcast to every neighbor.
type CoordinatorPreference struct {
	Round      uint64
	Preference Value
}

func (CoordinatorPreference) Kind() string { return "CoordinatorPreference" }

// PositiveAck acknowledges a CoordinatorPreference.
type PositiveAck struct {
	Round uint64
}

func (PositiveAck) Kind() string { return "PositiveAck" }

// NegativeAck is sent (best-effort) to a coordinator believed to have
// failed, and propagates a round-abandon signal to any recipient.
type NegativeAck struct {
	Round uint64
}

func (NegativeAck) Kind() string { return "NegativeAck" }

// Decide carries the inner agreed value. Per spec.md §9's second flagged
// open question, this carries Value directly (not a Preference record) —
// the source's apparent inconsistency is resolved in favor of the inner
// value, which is what HandleDecide expects on every node.
type Decide struct {
	Preference Value
}

func (Decide) Kind() string { return "Decide" }

// RequestConsensus asks the receiving node to begin (or rejoin) a
// consensus run.
type RequestConsensus struct {
	Round uint64
}

func (RequestConsensus) Kind() string { return "RequestConsensus" }

func init() {
	Register("Ping", func() Message { return &Ping{} })
	Register("Ack", func() Message { return &Ack{} })
	Register("Heartbeat", func() Message { return &Heartbeat{} })
	Register("SuspectList", func() Message { return &SuspectListMessage{} })
	Register("Preference", func() Message { return &Preference{} })
	Register("CoordinatorPreference", func() Message { return &CoordinatorPreference{} })
	Register("PositiveAck", func() Message { return &PositiveAck{} })
	Register("NegativeAck", func() Message { return &NegativeAck{} })
	Register("Decide", func() Message { return &Decide{} })
	Register("RequestConsensus", func() Message { return &RequestConsensus{} })
}
