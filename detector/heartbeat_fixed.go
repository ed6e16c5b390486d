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

const (
	heartbeatInterval         = 2000 * time.Millisecond
	heartbeatFailureDetectTick = 4000 * time.Millisecond
	fixedRoundtripTime        = 500 * time.Millisecond
)

type fixedHeartbeatPeerState struct {
	lastReceivedHeartbeat int64
	suspected             bool
}

// HeartbeatFixed is the passive heartbeat detector with a fixed
// acceptable roundtrip (spec.md §4.3.2).
type HeartbeatFixed struct {
	self   peer.Endpoint
	tr     transport.Transport
	clock  Clock
	onFail FailureCallback

	mu    sync.Mutex
	peers map[peer.Endpoint]*fixedHeartbeatPeerState
}

func NewHeartbeatFixed(self peer.Endpoint, onFail FailureCallback, clock Clock) *HeartbeatFixed {
	if clock == nil {
		clock = SystemClock
	}
	return &HeartbeatFixed{
		self:   self,
		clock:  clock,
		onFail: onFail,
		peers:  make(map[peer.Endpoint]*fixedHeartbeatPeerState),
	}
}

func (d *HeartbeatFixed) Initialize(tr transport.Transport, neighbors []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tr = tr
	for _, n := range neighbors {
		d.addNeighborLocked(n)
	}
}

func (d *HeartbeatFixed) AddNeighbor(n peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addNeighborLocked(n)
}

func (d *HeartbeatFixed) addNeighborLocked(n peer.Endpoint) {
	if n == d.self {
		return
	}
	if _, ok := d.peers[n]; ok {
		return
	}
	// Seed lastReceivedHeartbeat to now rather than zero: detectFailures
	// measures gap against the wall clock, and a zero seed would make a
	// freshly-added peer look like it has been silent since the epoch,
	// convicting it before it ever had a chance to send its first
	// heartbeat (the same "never heard from yet" grace pingack.go gives
	// via its lastReceiveAck == 0 check).
	d.peers[n] = &fixedHeartbeatPeerState{lastReceivedHeartbeat: d.clock.NowMillis()}
}

func (d *HeartbeatFixed) AddSuspects(suspects []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range suspects {
		if s == d.self {
			continue
		}
		st, ok := d.peers[s]
		if !ok {
			st = &fixedHeartbeatPeerState{lastReceivedHeartbeat: d.clock.NowMillis()}
			d.peers[s] = st
		}
		st.suspected = true
	}
}

func (d *HeartbeatFixed) SuspectedList() []peer.Endpoint {
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

func (d *HeartbeatFixed) DetectFailures(ctx context.Context) {
	go d.reportHealthLoop(ctx)
	go d.detectFailuresLoop(ctx)
}

func (d *HeartbeatFixed) reportHealthLoop(ctx context.Context) {
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

func (d *HeartbeatFixed) broadcastHeartbeat() {
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
		logger.Debugf("heartbeat(fixed): encode: %v", err)
		return
	}
	for _, n := range targets {
		_ = tr.Send(n, b)
	}
}

func (d *HeartbeatFixed) detectFailuresLoop(ctx context.Context) {
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

func (d *HeartbeatFixed) detectFailures() {
	d.mu.Lock()
	now := d.clock.NowMillis()
	threshold := fixedRoundtripTime.Milliseconds() + heartbeatInterval.Milliseconds()
	var newlySuspected []peer.Endpoint
	for n, st := range d.peers {
		gap := now - st.lastReceivedHeartbeat
		if gap > threshold {
			if !st.suspected {
				newlySuspected = append(newlySuspected, n)
			}
			st.suspected = true
		} else if st.suspected {
			st.suspected = false
		}
	}
	d.mu.Unlock()

	for _, n := range newlySuspected {
		if d.onFail != nil {
			d.onFail(n)
		}
	}
}

func (d *HeartbeatFixed) ReceiveMessage(msg wire.Message, from peer.Endpoint, learn LearnNeighborFunc) bool {
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
		st.lastReceivedHeartbeat = d.clock.NowMillis()
		st.suspected = false
	}
	d.mu.Unlock()
	return true
}
