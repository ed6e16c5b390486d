package node

import (
	"time"

	"fdnode/peer"
)

// Protocol selects the transport variant (spec.md §6).
type Protocol string

const (
	ProtocolTCP Protocol = "TCP"
	ProtocolUDP Protocol = "UDP"
)

// DetectorKind selects the failure-detector algorithm variant (spec.md §6).
type DetectorKind string

const (
	DetectorPingAck               DetectorKind = "PingAck"
	DetectorSimpleHeartbeat       DetectorKind = "SimpleHeartbeat"
	DetectorHeartbeatRecovery     DetectorKind = "HeartbeatRecovery"
	DetectorHeartbeatSliding      DetectorKind = "HeartbeatSlidingWindow"
	DetectorHeartbeatSuspectLevel DetectorKind = "HeartbeatSuspectLevel"
)

// ConsensusKind selects the consensus algorithm (spec.md §6). Chandra–Toueg
// is, at present, the only implemented option.
type ConsensusKind string

const ConsensusChandraToueg ConsensusKind = "ChandraToueg"

const (
	// DefaultWarmup is how long the router waits after startup before
	// calling StartConsensus for the first time (spec.md §4.5's
	// "optionally schedules an initial startConsensus() after a warm-up
	// delay").
	DefaultWarmup = 3 * time.Second
)

// UserHandlerFunc receives any inbound message neither the failure
// detector nor the consensus engine consumed (spec.md §4.5).
type UserHandlerFunc func(msg interface{}, from peer.Endpoint)

// Config is the programmatic (non-file) configuration of a node,
// per spec.md §6.
type Config struct {
	Self      peer.Endpoint
	Neighbors []peer.Endpoint

	NetworkProtocol Protocol
	FailureDetector DetectorKind
	Consensus       ConsensusKind
	Gossipping      bool
	Verbose         bool

	InitialValue string

	// Warmup is how long after Start the router waits before its first
	// StartConsensus call. Zero or negative skips that automatic call.
	Warmup time.Duration

	ReceiveMessageFunc UserHandlerFunc
}

// DefaultConfig returns a Config with every field set to the defaults
// named in spec.md §6, for self with no neighbors.
func DefaultConfig(self peer.Endpoint) *Config {
	return &Config{
		Self:            self,
		NetworkProtocol: ProtocolUDP,
		FailureDetector: DetectorHeartbeatSliding,
		Consensus:       ConsensusChandraToueg,
		Gossipping:      true,
		Verbose:         false,
		InitialValue:    "",
		Warmup:          DefaultWarmup,
	}
}

// Validate checks the subset of configuration that must be known-good
// before a node can start; an unrecognized detector or consensus
// selection is a Configuration error per spec.md §7 ("fatal; the
// process aborts before it starts").
func (c *Config) Validate() error {
	if c.Self.Host == "" {
		return ErrSelfRequired
	}
	switch c.NetworkProtocol {
	case ProtocolTCP, ProtocolUDP:
	default:
		return ErrUnknownProtocol
	}
	switch c.FailureDetector {
	case DetectorPingAck, DetectorSimpleHeartbeat, DetectorHeartbeatRecovery, DetectorHeartbeatSliding, DetectorHeartbeatSuspectLevel:
	default:
		return ErrUnknownDetector
	}
	switch c.Consensus {
	case ConsensusChandraToueg:
	default:
		return ErrUnknownConsensus
	}
	return nil
}
