package detector

import (
	"context"
	"sync"
	"time"

	"fdnode/logger"
	"fdnode/peer"
	"fdnode/transport"
	"fdnode/wire"
)

const suspectLevelMaximum = 3

// suspectLevelPeerState extends the sliding-window record with a
// suspectLevel counter. suspectLevel has its own RWMutex per spec.md
// §4.3.5 ("guarded for concurrent read/write"), separate from the
// detector-wide mutex that protects the rest of the fields — readers of
// the level (e.g. a dashboard) need not contend with heartbeat
// bookkeeping.
type suspectLevelPeerState struct {
	lastReceivedHeartbeat int64
	samples               []int64
	suspected             bool
	suspectedAt           int64

	levelMu      sync.RWMutex
	suspectLevel int
}

// newSuspectLevelPeerState seeds lastReceivedHeartbeat to now rather
// than zero: detectFailures measures gap against the wall clock, and a
// zero seed would run a freshly-added peer's suspectLevel up (and
// eventually convict it) before it ever had a chance to send its first
// heartbeat.
func newSuspectLevelPeerState(now int64) *suspectLevelPeerState {
	return &suspectLevelPeerState{samples: []int64{2000}, lastReceivedHeartbeat: now}
}

func (s *suspectLevelPeerState) acceptableRoundtrip() int64 {
	n := len(s.samples)
	if n > slidingWindowSize {
		n = slidingWindowSize
	}
	var sum int64
	for i := 0; i < n; i++ {
		sum += s.samples[i]
	}
	return sum / int64(n)
}

func (s *suspectLevelPeerState) prependSample(v int64) {
	s.samples = append([]int64{v}, s.samples...)
	if len(s.samples) > slidingWindowSize {
		s.samples = s.samples[:slidingWindowSize]
	}
}

func (s *suspectLevelPeerState) setLevel(n int) {
	s.levelMu.Lock()
	s.suspectLevel = n
	s.levelMu.Unlock()
}

func (s *suspectLevelPeerState) level() int {
	s.levelMu.RLock()
	defer s.levelMu.RUnlock()
	return s.suspectLevel
}

// reduceSuspicion decrements suspectLevel by one, floored at 0
// (spec.md §4.3.5, §8).
func (s *suspectLevelPeerState) reduceSuspicion() {
	s.levelMu.Lock()
	if s.suspectLevel > 0 {
		s.suspectLevel--
	}
	s.levelMu.Unlock()
}

// HeartbeatSuspectLevel layers a soft "suspect level" counter atop the
// sliding-window acceptable roundtrip: a peer is only hard-suspected
// after several consecutive missed windows (spec.md §4.3.5).
type HeartbeatSuspectLevel struct {
	self   peer.Endpoint
	tr     transport.Transport
	clock  Clock
	onFail FailureCallback

	mu    sync.Mutex
	peers map[peer.Endpoint]*suspectLevelPeerState
}

func NewHeartbeatSuspectLevel(self peer.Endpoint, onFail FailureCallback, clock Clock) *HeartbeatSuspectLevel {
	if clock == nil {
		clock = SystemClock
	}
	return &HeartbeatSuspectLevel{
		self:   self,
		clock:  clock,
		onFail: onFail,
		peers:  make(map[peer.Endpoint]*suspectLevelPeerState),
	}
}

func (d *HeartbeatSuspectLevel) Initialize(tr transport.Transport, neighbors []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tr = tr
	for _, n := range neighbors {
		d.addNeighborLocked(n)
	}
}

func (d *HeartbeatSuspectLevel) AddNeighbor(n peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addNeighborLocked(n)
}

func (d *HeartbeatSuspectLevel) addNeighborLocked(n peer.Endpoint) {
	if n == d.self {
		return
	}
	if _, ok := d.peers[n]; ok {
		return
	}
	d.peers[n] = newSuspectLevelPeerState(d.clock.NowMillis())
}

func (d *HeartbeatSuspectLevel) AddSuspects(suspects []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range suspects {
		if s == d.self {
			continue
		}
		st, ok := d.peers[s]
		if !ok {
			st = newSuspectLevelPeerState(d.clock.NowMillis())
			d.peers[s] = st
		}
		if !st.suspected {
			st.suspectedAt = st.lastReceivedHeartbeat
		}
		st.suspected = true
		st.setLevel(suspectLevelMaximum)
	}
}

func (d *HeartbeatSuspectLevel) SuspectedList() []peer.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []peer.Endpoint
	for n, st := range d.peers {
		if st.suspected {
			out = append(out, n)
		}
	}
	return out
}

func (d *HeartbeatSuspectLevel) DetectFailures(ctx context.Context) {
	go d.reportHealthLoop(ctx)
	go d.detectFailuresLoop(ctx)
}

func (d *HeartbeatSuspectLevel) reportHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.broadcastHeartbeat()
		}
	}
}

func (d *HeartbeatSuspectLevel) broadcastHeartbeat() {
	d.mu.Lock()
	var targets []peer.Endpoint
	for n, st := range d.peers {
		if !st.suspected {
			targets = append(targets, n)
		}
	}
	tr := d.tr
	d.mu.Unlock()

	hb := wire.Heartbeat{From: d.self}
	b, err := wire.Encode(&hb)
	if err != nil {
		logger.Debugf("heartbeat(suspectlevel): encode: %v", err)
		return
	}
	for _, n := range targets {
		_ = tr.Send(n, b)
	}
}

func (d *HeartbeatSuspectLevel) detectFailuresLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatFailureDetectTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.detectFailures()
		}
	}
}

func (d *HeartbeatSuspectLevel) detectFailures() {
	d.mu.Lock()
	now := d.clock.NowMillis()
	var newlySuspected []peer.Endpoint
	for n, st := range d.peers {
		if st.suspected {
			continue
		}
		gap := now - st.lastReceivedHeartbeat
		rt := st.acceptableRoundtrip()
		level := 0
		if rt > 0 {
			level = int(gap / rt)
		}
		if level <= 0 {
			continue
		}
		st.setLevel(level)
		if level >= suspectLevelMaximum {
			newlySuspected = append(newlySuspected, n)
			st.suspected = true
			st.suspectedAt = st.lastReceivedHeartbeat
		}
	}
	d.mu.Unlock()

	for _, n := range newlySuspected {
		if d.onFail != nil {
			d.onFail(n)
		}
	}
}

func (d *HeartbeatSuspectLevel) ReceiveMessage(msg wire.Message, from peer.Endpoint, learn LearnNeighborFunc) bool {
	hb, ok := msg.(*wire.Heartbeat)
	if !ok {
		return false
	}
	// The sender's own advertised endpoint, not the transport-reported
	// source address: under TCP, from is an ephemeral per-message dial
	// port (transport/tcp.go), not the peer's listening endpoint.
	sender := hb.From
	if sender == (peer.Endpoint{}) {
		sender = from
	}

	d.mu.Lock()
	st, known := d.peers[sender]
	if !known {
		d.mu.Unlock()
		learn(sender)
		d.mu.Lock()
		st = d.peers[sender]
	}
	if st != nil {
		now := d.clock.NowMillis()
		var sample int64
		if st.suspected {
			sample = now - st.suspectedAt
			st.suspected = false
		} else {
			sample = now - st.lastReceivedHeartbeat
		}
		st.prependSample(sample)
		st.lastReceivedHeartbeat = now
		st.reduceSuspicion()
	}
	d.mu.Unlock()
	return true
}
