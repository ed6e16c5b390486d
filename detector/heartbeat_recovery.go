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

type recoveryHeartbeatPeerState struct {
	lastReceivedHeartbeat int64
	roundtripTime         int64 // milliseconds, mutable, starts at 500
	suspected             bool
	suspectedAt           int64 // recorded at the healthy→suspected transition
}

// HeartbeatRecovery is the heartbeat detector whose per-peer roundtrip
// tolerance grows after a recovery, based on how long the peer was
// silent (spec.md §4.3.3).
type HeartbeatRecovery struct {
	self   peer.Endpoint
	tr     transport.Transport
	clock  Clock
	onFail FailureCallback

	mu    sync.Mutex
	peers map[peer.Endpoint]*recoveryHeartbeatPeerState
}

func NewHeartbeatRecovery(self peer.Endpoint, onFail FailureCallback, clock Clock) *HeartbeatRecovery {
	if clock == nil {
		clock = SystemClock
	}
	return &HeartbeatRecovery{
		self:   self,
		clock:  clock,
		onFail: onFail,
		peers:  make(map[peer.Endpoint]*recoveryHeartbeatPeerState),
	}
}

func (d *HeartbeatRecovery) Initialize(tr transport.Transport, neighbors []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tr = tr
	for _, n := range neighbors {
		d.addNeighborLocked(n)
	}
}

func (d *HeartbeatRecovery) AddNeighbor(n peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addNeighborLocked(n)
}

func (d *HeartbeatRecovery) addNeighborLocked(n peer.Endpoint) {
	if n == d.self {
		return
	}
	if _, ok := d.peers[n]; ok {
		return
	}
	// Seed lastReceivedHeartbeat to now, not zero: detectFailures measures
	// gap against the wall clock, and a zero seed would convict a
	// freshly-added peer before it ever had a chance to send its first
	// heartbeat.
	d.peers[n] = &recoveryHeartbeatPeerState{
		roundtripTime:         fixedRoundtripTime.Milliseconds(),
		lastReceivedHeartbeat: d.clock.NowMillis(),
	}
}

func (d *HeartbeatRecovery) AddSuspects(suspects []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.NowMillis()
	for _, s := range suspects {
		if s == d.self {
			continue
		}
		st, ok := d.peers[s]
		if !ok {
			st = &recoveryHeartbeatPeerState{roundtripTime: fixedRoundtripTime.Milliseconds(), lastReceivedHeartbeat: now}
			d.peers[s] = st
		}
		if !st.suspected {
			st.suspectedAt = now
		}
		st.suspected = true
	}
}

func (d *HeartbeatRecovery) SuspectedList() []peer.Endpoint {
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

func (d *HeartbeatRecovery) DetectFailures(ctx context.Context) {
	go d.reportHealthLoop(ctx)
	go d.detectFailuresLoop(ctx)
}

func (d *HeartbeatRecovery) reportHealthLoop(ctx context.Context) {
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

func (d *HeartbeatRecovery) broadcastHeartbeat() {
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
		logger.Debugf("heartbeat(recovery): encode: %v", err)
		return
	}
	for _, n := range targets {
		_ = tr.Send(n, b)
	}
}

func (d *HeartbeatRecovery) detectFailuresLoop(ctx context.Context) {
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

// detectFailures has no periodic unmark path in this variant (spec.md
// §4.3.3): recovery only happens when a heartbeat actually arrives from
// a suspected peer, in ReceiveMessage below.
func (d *HeartbeatRecovery) detectFailures() {
	d.mu.Lock()
	now := d.clock.NowMillis()
	var newlySuspected []peer.Endpoint
	for n, st := range d.peers {
		if st.suspected {
			continue
		}
		threshold := st.roundtripTime + heartbeatInterval.Milliseconds()
		if now-st.lastReceivedHeartbeat > threshold {
			newlySuspected = append(newlySuspected, n)
			st.suspected = true
			st.suspectedAt = now
		}
	}
	d.mu.Unlock()

	for _, n := range newlySuspected {
		if d.onFail != nil {
			d.onFail(n)
		}
	}
}

func (d *HeartbeatRecovery) ReceiveMessage(msg wire.Message, from peer.Endpoint, learn LearnNeighborFunc) bool {
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
		if st.suspected {
			// newRoundtripTime = now - lastReceivedHeartbeatTime, the gap
			// through which the peer was silent (spec.md §4.3.3).
			st.roundtripTime = now - st.lastReceivedHeartbeat
			st.suspected = false
		}
		st.lastReceivedHeartbeat = now
	}
	d.mu.Unlock()
	return true
}
