// Package consensus implements the Chandra–Toueg rotating-coordinator
// protocol described in spec.md §4.4: nodes propose a value, a
// round-deterministic coordinator gathers a quorum of preferences and
// broadcasts its pick, and a second quorum of acknowledgements confirms
// the decision. It is driven both by application calls to StartConsensus
// and by failure callbacks from a detector.Detector.
package consensus

import (
	"sort"
	"sync"

	"fdnode/logger"
	"fdnode/peer"
	"fdnode/transport"
	"fdnode/wire"
)

// Clock supplies the UTC-wallclock timestamp a Preference carries to
// break ties across processes (spec.md §9: "correctness-critical...
// clock skew across nodes affects which preference wins").
type Clock interface {
	NowMillisUTC() int64
}

type systemClock struct{}

func (systemClock) NowMillisUTC() int64 { return nowMillisUTC() }

// Engine is one node's Chandra–Toueg state machine. Exactly one
// consensus run is active at a time per spec.md §3 ("single concurrent
// consensus run").
type Engine struct {
	self  peer.Endpoint
	tr    transport.Transport
	clock Clock

	mu         sync.Mutex
	neighbors  []peer.Endpoint // excludes self
	value      wire.Value
	decision   wire.Value
	round      uint64
	preference map[uint64][]wire.Preference
	positive   map[uint64]int
	negative   map[uint64]int

	// broadcastedCoordinatorFor and broadcastedDecideFor guard against
	// re-broadcasting once a round has already crossed quorum, per
	// spec.md §7's "implementations should guard with 'already
	// broadcast for this round' if duplicates would re-broadcast."
	broadcastedCoordinatorFor map[uint64]bool
	broadcastedDecideFor      map[uint64]bool
}

// NewEngine constructs an Engine for self with the given initial
// proposal value. clock defaults to the system UTC clock when nil.
func NewEngine(self peer.Endpoint, initial wire.Value, tr transport.Transport, clock Clock) *Engine {
	if clock == nil {
		clock = systemClock{}
	}
	return &Engine{
		self:                      self,
		tr:                        tr,
		clock:                     clock,
		value:                     initial,
		decision:                  initial,
		preference:                make(map[uint64][]wire.Preference),
		positive:                  make(map[uint64]int),
		negative:                  make(map[uint64]int),
		broadcastedCoordinatorFor: make(map[uint64]bool),
		broadcastedDecideFor:      make(map[uint64]bool),
	}
}

// AddNeighbor introduces a peer to the membership snapshot used for
// coordinator/quorum arithmetic (idempotent).
func (e *Engine) AddNeighbor(n peer.Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == e.self {
		return
	}
	if containsEndpoint(e.neighbors, n) {
		return
	}
	e.neighbors = append(e.neighbors, n)
}

func containsEndpoint(list []peer.Endpoint, e peer.Endpoint) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}

// members returns sortAsc(self ∪ neighbors), the deterministic
// membership snapshot coordinator(r) indexes into.
func (e *Engine) members() []peer.Endpoint {
	all := make([]peer.Endpoint, 0, len(e.neighbors)+1)
	all = append(all, e.self)
	all = append(all, e.neighbors...)
	sort.Slice(all, func(i, j int) bool { return all[i].Less(all[j]) })
	return all
}

// coordinatorLocked returns coordinator(r) = sortAsc(self ∪ neighbors)[r mod N].
// Caller must hold e.mu.
func (e *Engine) coordinatorLocked(round uint64) peer.Endpoint {
	m := e.members()
	return m[round%uint64(len(m))]
}

// Coordinator exposes coordinator(round) for callers outside the
// engine (the node router's failure callback).
func (e *Engine) Coordinator(round uint64) peer.Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coordinatorLocked(round)
}

// quorumLocked returns Q = floor(N/2)+1. Caller must hold e.mu.
func (e *Engine) quorumLocked() int {
	n := len(e.neighbors) + 1
	return n/2 + 1
}

// Value returns the current proposal/decided value.
func (e *Engine) Value() wire.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Decision returns the most recently confirmed decision value, distinct
// from Value: value is this node's own proposal/preference, while
// decision only moves once a CoordinatorPreference or Decide has been
// accepted for a round (spec.md §3), so the two can diverge during the
// CoordinatorPreference→PositiveAck window.
func (e *Engine) Decision() wire.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decision
}

// Round returns the current round number.
func (e *Engine) Round() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round
}

// StartConsensus advances to the next round and proposes e.value to
// that round's coordinator, per spec.md §4.4.
func (e *Engine) StartConsensus() {
	e.mu.Lock()
	e.round++
	round := e.round
	pref := wire.Preference{Round: round, Preference: e.value, Timestamp: e.clock.NowMillisUTC()}
	coordinator := e.coordinatorLocked(round)
	isSelf := coordinator == e.self
	e.mu.Unlock()

	logger.Printf("consensus: starting round %d, proposing %q to coordinator %s", round, pref.Preference, coordinator)

	if isSelf {
		e.handlePreference(pref, e.self)
		return
	}
	e.send(coordinator, &pref)
}

// handlePreference is the coordinator-side handler: it accumulates
// preferences for the round and, once a quorum has arrived, picks the
// latest-timestamp entry and broadcasts a CoordinatorPreference.
func (e *Engine) handlePreference(p wire.Preference, from peer.Endpoint) {
	e.mu.Lock()
	e.preference[p.Round] = append(e.preference[p.Round], p)
	count := len(e.preference[p.Round])
	q := e.quorumLocked()
	already := e.broadcastedCoordinatorFor[p.Round]
	var winner wire.Preference
	var shouldBroadcast bool
	if count >= q && !already {
		winner = latestByTimestamp(e.preference[p.Round])
		e.broadcastedCoordinatorFor[p.Round] = true
		shouldBroadcast = true
	}
	e.mu.Unlock()

	if !shouldBroadcast {
		return
	}
	cp := wire.CoordinatorPreference{Round: p.Round, Preference: winner.Preference}
	e.broadcastToNeighbors(&cp)
	e.handleCoordinatorPreference(cp)
}

// latestByTimestamp picks the preference with the highest timestamp;
// ties resolve to the first one encountered (list-position order, per
// spec.md §4.4's "tie-break: any; the source uses list-position
// order").
func latestByTimestamp(list []wire.Preference) wire.Preference {
	winner := list[0]
	for _, p := range list[1:] {
		if p.Timestamp > winner.Timestamp {
			winner = p
		}
	}
	return winner
}

// handleCoordinatorPreference updates Decision and replies with a
// PositiveAck to the round's coordinator (spec.md §4.4).
func (e *Engine) handleCoordinatorPreference(cp wire.CoordinatorPreference) {
	e.mu.Lock()
	e.decision = cp.Preference
	coordinator := e.coordinatorLocked(cp.Round)
	isSelf := coordinator == e.self
	e.mu.Unlock()

	ack := wire.PositiveAck{Round: cp.Round}
	if isSelf {
		e.handlePositiveAck(ack)
		return
	}
	e.send(coordinator, &ack)
}

// handlePositiveAck is the coordinator-side handler: once a quorum of
// PositiveAcks has arrived for the round, it broadcasts Decide and
// applies it locally.
func (e *Engine) handlePositiveAck(ack wire.PositiveAck) {
	e.mu.Lock()
	e.positive[ack.Round]++
	count := e.positive[ack.Round]
	q := e.quorumLocked()
	already := e.broadcastedDecideFor[ack.Round]
	var winnerPref wire.Value
	var shouldBroadcast bool
	if count >= q && !already {
		winnerPref = latestByTimestamp(e.preference[ack.Round]).Preference
		e.broadcastedDecideFor[ack.Round] = true
		shouldBroadcast = true
	}
	e.mu.Unlock()

	if !shouldBroadcast {
		return
	}
	decide := wire.Decide{Preference: winnerPref}
	e.broadcastToNeighbors(&decide)
	e.handleDecide(decide)
}

// handleNegativeAck accumulates NegativeAcks for a round; at quorum it
// clears all consensus state without touching Decision (spec.md §4.4).
func (e *Engine) handleNegativeAck(nack wire.NegativeAck) {
	e.mu.Lock()
	e.negative[nack.Round]++
	count := e.negative[nack.Round]
	q := e.quorumLocked()
	shouldClear := count >= q
	e.mu.Unlock()

	if shouldClear {
		e.clearState()
	}
}

// handleDecide applies the agreed value and clears consensus state
// (spec.md §4.4). Per spec.md §9's flagged inconsistency, Decide
// carries the inner value directly, not a Preference record.
func (e *Engine) handleDecide(d wire.Decide) {
	e.mu.Lock()
	e.value = d.Preference
	e.decision = d.Preference
	e.mu.Unlock()
	logger.Printf("consensus: decided value %q", d.Preference)
	e.clearState()
}

// clearState resets Round to 0 and empties the per-round maps. A
// subsequent StartConsensus begins again at round 1, matching the
// "each consensus instance is independent" reading of spec.md §9.
func (e *Engine) clearState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round = 0
	e.preference = make(map[uint64][]wire.Preference)
	e.positive = make(map[uint64]int)
	e.negative = make(map[uint64]int)
	e.broadcastedCoordinatorFor = make(map[uint64]bool)
	e.broadcastedDecideFor = make(map[uint64]bool)
}

// OnFailureDetected reacts to a detector upcall: if the failed node was
// the current round's coordinator, it best-effort-notifies it with a
// NegativeAck and advances to the next round (spec.md §4.4).
func (e *Engine) OnFailureDetected(n peer.Endpoint) {
	e.mu.Lock()
	round := e.round
	coordinator := e.coordinatorLocked(round)
	e.mu.Unlock()

	if coordinator != n {
		return
	}
	nack := wire.NegativeAck{Round: round}
	e.send(n, &nack)
	e.StartConsensus()
}

// ReceiveMessage dispatches m to the matching handler, reporting
// whether it was a consensus message this engine consumed.
func (e *Engine) ReceiveMessage(msg wire.Message, from peer.Endpoint) bool {
	switch m := msg.(type) {
	case *wire.Preference:
		e.handlePreference(*m, from)
		return true
	case *wire.CoordinatorPreference:
		e.handleCoordinatorPreference(*m)
		return true
	case *wire.PositiveAck:
		e.handlePositiveAck(*m)
		return true
	case *wire.NegativeAck:
		e.handleNegativeAck(*m)
		return true
	case *wire.Decide:
		e.handleDecide(*m)
		return true
	case *wire.RequestConsensus:
		e.StartConsensus()
		return true
	default:
		return false
	}
}

func (e *Engine) send(to peer.Endpoint, msg wire.Message) {
	b, err := wire.Encode(msg)
	if err != nil {
		logger.Debugf("consensus: encode %s: %v", msg.Kind(), err)
		return
	}
	_ = e.tr.Send(to, b)
}

func (e *Engine) broadcastToNeighbors(msg wire.Message) {
	e.mu.Lock()
	targets := make([]peer.Endpoint, len(e.neighbors))
	copy(targets, e.neighbors)
	e.mu.Unlock()

	b, err := wire.Encode(msg)
	if err != nil {
		logger.Debugf("consensus: encode %s: %v", msg.Kind(), err)
		return
	}
	for _, n := range targets {
		_ = e.tr.Send(n, b)
	}
}
