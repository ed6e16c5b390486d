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

const slidingWindowSize = 50

// slidingWindowPeerState tracks roundtrip samples, most recent first.
// Initial content is [2000ms] so acceptableRoundtrip is never undefined
// (spec.md §3, §8).
type slidingWindowPeerState struct {
	lastReceivedHeartbeat int64
	samples               []int64
	suspected             bool
	suspectedAt           int64 // lastReceivedHeartbeat value recorded at conviction, for recovery math
}

// newSlidingWindowPeerState seeds lastReceivedHeartbeat to now rather
// than zero: detectFailures measures gap against the wall clock, and a
// zero seed would convict a freshly-added peer before it ever had a
// chance to send its first heartbeat.
func newSlidingWindowPeerState(now int64) *slidingWindowPeerState {
	return &slidingWindowPeerState{samples: []int64{2000}, lastReceivedHeartbeat: now}
}

// acceptableRoundtrip is the mean of the most recent min(len(samples), W)
// samples.
func (s *slidingWindowPeerState) acceptableRoundtrip() int64 {
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

func (s *slidingWindowPeerState) prependSample(v int64) {
	s.samples = append([]int64{v}, s.samples...)
	if len(s.samples) > slidingWindowSize {
		s.samples = s.samples[:slidingWindowSize]
	}
}

// HeartbeatSlidingWindow is the heartbeat detector whose acceptable
// roundtrip is the mean of the last W observed samples (spec.md
// §4.3.4).
type HeartbeatSlidingWindow struct {
	self   peer.Endpoint
	tr     transport.Transport
	clock  Clock
	onFail FailureCallback

	mu    sync.Mutex
	peers map[peer.Endpoint]*slidingWindowPeerState
}

func NewHeartbeatSlidingWindow(self peer.Endpoint, onFail FailureCallback, clock Clock) *HeartbeatSlidingWindow {
	if clock == nil {
		clock = SystemClock
	}
	return &HeartbeatSlidingWindow{
		self:   self,
		clock:  clock,
		onFail: onFail,
		peers:  make(map[peer.Endpoint]*slidingWindowPeerState),
	}
}

func (d *HeartbeatSlidingWindow) Initialize(tr transport.Transport, neighbors []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tr = tr
	for _, n := range neighbors {
		d.addNeighborLocked(n)
	}
}

func (d *HeartbeatSlidingWindow) AddNeighbor(n peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addNeighborLocked(n)
}

func (d *HeartbeatSlidingWindow) addNeighborLocked(n peer.Endpoint) {
	if n == d.self {
		return
	}
	if _, ok := d.peers[n]; ok {
		return
	}
	d.peers[n] = newSlidingWindowPeerState(d.clock.NowMillis())
}

func (d *HeartbeatSlidingWindow) AddSuspects(suspects []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range suspects {
		if s == d.self {
			continue
		}
		st, ok := d.peers[s]
		if !ok {
			st = newSlidingWindowPeerState(d.clock.NowMillis())
			d.peers[s] = st
		}
		if !st.suspected {
			st.suspectedAt = st.lastReceivedHeartbeat
		}
		st.suspected = true
	}
}

func (d *HeartbeatSlidingWindow) SuspectedList() []peer.Endpoint {
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

func (d *HeartbeatSlidingWindow) DetectFailures(ctx context.Context) {
	go d.reportHealthLoop(ctx)
	go d.detectFailuresLoop(ctx)
}

func (d *HeartbeatSlidingWindow) reportHealthLoop(ctx context.Context) {
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

func (d *HeartbeatSlidingWindow) broadcastHeartbeat() {
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
		logger.Debugf("heartbeat(sliding): encode: %v", err)
		return
	}
	for _, n := range targets {
		_ = tr.Send(n, b)
	}
}

func (d *HeartbeatSlidingWindow) detectFailuresLoop(ctx context.Context) {
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

func (d *HeartbeatSlidingWindow) detectFailures() {
	d.mu.Lock()
	now := d.clock.NowMillis()
	var newlySuspected []peer.Endpoint
	for n, st := range d.peers {
		if st.suspected {
			continue
		}
		threshold := st.acceptableRoundtrip() + heartbeatInterval.Milliseconds()
		if now-st.lastReceivedHeartbeat > threshold {
			newlySuspected = append(newlySuspected, n)
			st.suspected = true
			// Store current lastReceivedHeartbeat for recovery math, per
			// spec.md §4.3.4.
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

func (d *HeartbeatSlidingWindow) ReceiveMessage(msg wire.Message, from peer.Endpoint, learn LearnNeighborFunc) bool {
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
	}
	d.mu.Unlock()
	return true
}
