// Package node wires a transport, a failure detector, and a consensus
// engine together into the message router described in spec.md §4.5:
// decode an inbound frame, offer it to the failure detector, then to
// consensus, then — if nothing claimed it — to the caller's own
// message handler.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fdnode/consensus"
	"fdnode/detector"
	"fdnode/logger"
	"fdnode/metrics"
	"fdnode/peer"
	"fdnode/transport"
	"fdnode/wire"
)

// suspectPollInterval drives the gauge/recovery-counter reconciliation
// loop. Recovery never fires an upcall (spec.md §4.3), so the only way
// to count it is to diff successive SuspectedList snapshots.
const suspectPollInterval = 1 * time.Second

// Node owns the transport exclusively; the failure detector and the
// consensus engine borrow a reference to it for sending, matching
// spec.md §9's "single ownership at the node" recommendation over
// shared mutable references.
type Node struct {
	config *Config
	tr     transport.Transport
	det    detector.Detector
	engine *consensus.Engine

	mu        sync.Mutex
	neighbors *peer.Set

	ctx    context.Context
	cancel context.CancelFunc
}

// New validates config and constructs a Node, selecting the transport
// and failure-detector implementations it names. It binds the
// transport's socket but starts no goroutine; call Start for that.
func New(config *Config) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("node: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("node: invalid config: %w", err)
	}

	n := &Node{
		config:    config,
		neighbors: peer.NewSet(config.Self, config.Neighbors),
	}

	var tr transport.Transport
	var err error
	switch config.NetworkProtocol {
	case ProtocolTCP:
		tr, err = transport.NewTCP(config.Self)
	default:
		tr, err = transport.NewUDP(config.Self)
	}
	if err != nil {
		return nil, fmt.Errorf("node: bind transport: %w", err)
	}
	n.tr = tr

	n.det = newDetector(config, n.onFailureDetected)
	n.engine = consensus.NewEngine(config.Self, wire.Value(config.InitialValue), tr, nil)
	for _, nb := range config.Neighbors {
		n.engine.AddNeighbor(nb)
	}

	return n, nil
}

// newDetector builds the configured detector variant, layered in gossip
// when requested (spec.md §4.3.6).
func newDetector(config *Config, onFail detector.FailureCallback) detector.Detector {
	var inner detector.Detector
	switch config.FailureDetector {
	case DetectorPingAck:
		inner = detector.NewPingAck(config.Self, onFail, nil)
	case DetectorSimpleHeartbeat:
		inner = detector.NewHeartbeatFixed(config.Self, onFail, nil)
	case DetectorHeartbeatRecovery:
		inner = detector.NewHeartbeatRecovery(config.Self, onFail, nil)
	case DetectorHeartbeatSuspectLevel:
		inner = detector.NewHeartbeatSuspectLevel(config.Self, onFail, nil)
	default:
		inner = detector.NewHeartbeatSlidingWindow(config.Self, onFail, nil)
	}
	if config.Gossipping {
		return detector.NewGossip(config.Self, inner)
	}
	return inner
}

// Start binds the transport receive-loop, the detector's periodic
// workflows, and (after a warm-up delay) the first StartConsensus call,
// all in the background, per spec.md §4.5.
func (n *Node) Start() error {
	n.mu.Lock()
	n.ctx, n.cancel = context.WithCancel(context.Background())
	ctx := n.ctx
	n.mu.Unlock()

	n.det.Initialize(n.tr, n.config.Neighbors)

	go func() {
		if err := n.tr.Serve(ctx, n.process); err != nil {
			logger.Printf("node %s: transport serve exited: %v", n.config.Self, err)
		}
	}()

	n.det.DetectFailures(ctx)
	go n.suspectPollLoop(ctx)

	warmup := n.config.Warmup
	if warmup > 0 {
		go func() {
			select {
			case <-ctx.Done():
			case <-time.After(warmup):
				n.StartConsensus()
			}
		}()
	}

	n.logf("started on %s (protocol=%s detector=%s gossip=%v)",
		n.config.Self, n.config.NetworkProtocol, n.config.FailureDetector, n.config.Gossipping)
	return nil
}

// Stop cancels every background workflow and releases the transport.
func (n *Node) Stop() error {
	n.mu.Lock()
	cancel := n.cancel
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	n.logf("stopping")
	return n.tr.Close()
}

// process implements the dispatch chain from spec.md §4.5: decode,
// then failure detector, then consensus, then the user handler.
func (n *Node) process(payload []byte, from peer.Endpoint) {
	msg, err := wire.Decode(payload)
	if err != nil {
		logger.Debugf("node %s: decode from %s: %v", n.config.Self, from, err)
		return
	}

	if n.det.ReceiveMessage(msg, from, n.learnNeighbor) {
		return
	}
	if n.engine.ReceiveMessage(msg, from) {
		return
	}
	if n.config.ReceiveMessageFunc != nil {
		n.config.ReceiveMessageFunc(msg, from)
	}
}

// learnNeighbor adds n to the node's neighbor set and notifies the
// failure detector and the consensus engine, per spec.md §4.5.
func (n *Node) learnNeighbor(p peer.Endpoint) {
	n.mu.Lock()
	added := n.neighbors.Add(p)
	n.mu.Unlock()
	if !added {
		return
	}
	n.det.AddNeighbor(p)
	n.engine.AddNeighbor(p)
	n.logf("learned new neighbor %s", p)
}

// onFailureDetected forwards a detector's upcall to the consensus
// engine (spec.md §4.4's OnFailureDetected).
func (n *Node) onFailureDetected(p peer.Endpoint) {
	self := n.config.Self.String()
	metrics.SuspicionsTotal.WithLabelValues(self, p.String()).Inc()
	if n.engine.Coordinator(n.engine.Round()) == p {
		metrics.CoordinatorFailuresTotal.WithLabelValues(self).Inc()
	}
	n.logf("suspected neighbor %s", p)
	n.engine.OnFailureDetected(p)
}

// StartConsensus begins (or restarts) a consensus run and counts it in
// ConsensusRoundsTotal. Rounds the engine starts on its own (after a
// coordinator failure or a RequestConsensus) are not counted here.
// Decisions are counted by suspectPollLoop, which watches Value for
// changes.
func (n *Node) StartConsensus() {
	metrics.ConsensusRoundsTotal.WithLabelValues(n.config.Self.String()).Inc()
	n.engine.StartConsensus()
}

// suspectPollLoop reconciles the Prometheus suspected-peers gauge and
// recovery counter against the detector's suspect set, since recovery
// (unlike suspicion) never fires an upcall (spec.md §4.3).
func (n *Node) suspectPollLoop(ctx context.Context) {
	ticker := time.NewTicker(suspectPollInterval)
	defer ticker.Stop()
	self := n.config.Self.String()
	previous := make(map[peer.Endpoint]bool)
	lastDecision := n.engine.Value()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := make(map[peer.Endpoint]bool)
			for _, p := range n.det.SuspectedList() {
				current[p] = true
			}
			for p := range previous {
				if !current[p] {
					metrics.RecoveriesTotal.WithLabelValues(self, p.String()).Inc()
				}
			}
			metrics.SuspectedGauge.WithLabelValues(self).Set(float64(len(current)))
			previous = current

			if v := n.engine.Value(); v != lastDecision {
				metrics.ConsensusDecisionsTotal.WithLabelValues(self).Inc()
				lastDecision = v
			}
		}
	}
}

// Value returns the node's current consensus value.
func (n *Node) Value() wire.Value { return n.engine.Value() }

// Decision returns the most recently confirmed consensus decision,
// distinct from Value during the CoordinatorPreference→PositiveAck
// window (see consensus.Engine.Decision).
func (n *Node) Decision() wire.Value { return n.engine.Decision() }

// SuspectedList returns the failure detector's current suspect set.
func (n *Node) SuspectedList() []peer.Endpoint { return n.det.SuspectedList() }

// Self returns the node's own endpoint.
func (n *Node) Self() peer.Endpoint { return n.config.Self }

// Config returns the node's configuration, for display purposes (the
// dashboard reads it to show the detector setting).
func (n *Node) Config() Config { return *n.config }

// Round returns the current consensus round.
func (n *Node) Round() uint64 { return n.engine.Round() }

func (n *Node) logf(format string, args ...interface{}) {
	logger.Printf("[%s] %s", n.config.Self, fmt.Sprintf(format, args...))
}
