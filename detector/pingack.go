package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fdnode/logger"
	"fdnode/peer"
	"fdnode/transport"
	"fdnode/wire"
)

const (
	pingInterval             = 4000 * time.Millisecond
	pingFailureDetectionTick = 6000 * time.Millisecond
	pingTolerateFailureFor   = 10000 * time.Millisecond
)

// pingAckPeerState is the per-neighbor health record for the ping-ack
// detector (spec.md §3). Guarded by the detector's single mutex rather
// than one per peer, matching the teacher's "single owner receiving all
// events serially" recommendation (spec.md §5).
type pingAckPeerState struct {
	lastSentPing   int64
	lastReceiveAck int64
	suspected      bool
}

// PingAck is the active-probe detector with a fixed tolerance window
// (spec.md §4.3.1).
type PingAck struct {
	self   peer.Endpoint
	tr     transport.Transport
	clock  Clock
	onFail FailureCallback

	mu        sync.Mutex
	neighbors []peer.Endpoint
	peers     map[peer.Endpoint]*pingAckPeerState
	nextMsgID uint64
}

// NewPingAck constructs a PingAck detector bound to self, firing onFail
// on every healthy→suspected transition. clock defaults to SystemClock
// when nil.
func NewPingAck(self peer.Endpoint, onFail FailureCallback, clock Clock) *PingAck {
	if clock == nil {
		clock = SystemClock
	}
	return &PingAck{
		self:   self,
		clock:  clock,
		onFail: onFail,
		peers:  make(map[peer.Endpoint]*pingAckPeerState),
	}
}

func (d *PingAck) Initialize(tr transport.Transport, neighbors []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tr = tr
	for _, n := range neighbors {
		d.addNeighborLocked(n)
	}
}

func (d *PingAck) AddNeighbor(n peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addNeighborLocked(n)
}

func (d *PingAck) addNeighborLocked(n peer.Endpoint) {
	if n == d.self {
		return
	}
	if _, ok := d.peers[n]; ok {
		return
	}
	d.neighbors = append(d.neighbors, n)
	d.peers[n] = &pingAckPeerState{}
}

func (d *PingAck) AddSuspects(suspects []peer.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range suspects {
		if s == d.self {
			continue
		}
		st, ok := d.peers[s]
		if !ok {
			d.neighbors = append(d.neighbors, s)
			st = &pingAckPeerState{}
			d.peers[s] = st
		}
		st.suspected = true
	}
}

func (d *PingAck) SuspectedList() []peer.Endpoint {
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

func (d *PingAck) DetectFailures(ctx context.Context) {
	go d.reportHealthLoop(ctx)
	go d.detectFailuresLoop(ctx)
}

func (d *PingAck) reportHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reportHealth()
		}
	}
}

func (d *PingAck) reportHealth() {
	d.mu.Lock()
	now := d.clock.NowMillis()
	type send struct {
		to  peer.Endpoint
		msg wire.Ping
	}
	var sends []send
	for n, st := range d.peers {
		if st.suspected {
			continue
		}
		d.nextMsgID++
		id := fmt.Sprintf("%s-%d-%d", d.self, d.nextMsgID, now)
		st.lastSentPing = now
		sends = append(sends, send{to: n, msg: wire.Ping{MessageID: id, From: d.self}})
	}
	tr := d.tr
	d.mu.Unlock()

	for _, s := range sends {
		b, err := wire.Encode(&s.msg)
		if err != nil {
			logger.Debugf("pingack: encode ping: %v", err)
			continue
		}
		_ = tr.Send(s.to, b)
	}
}

func (d *PingAck) detectFailuresLoop(ctx context.Context) {
	ticker := time.NewTicker(pingFailureDetectionTick)
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

func (d *PingAck) detectFailures() {
	d.mu.Lock()
	var newlySuspected []peer.Endpoint
	for n, st := range d.peers {
		// spec.md §9: "no ack yet since first ping" (lastReceiveAck == 0)
		// is treated explicitly as "not yet suspected" rather than fed
		// through abs(), resolving the source's flagged ambiguity.
		if st.lastSentPing > 0 && st.lastReceiveAck == 0 {
			continue
		}
		gap := abs64(st.lastReceiveAck - st.lastSentPing)
		wasSuspected := st.suspected
		if gap > pingTolerateFailureFor.Milliseconds() {
			if !wasSuspected {
				newlySuspected = append(newlySuspected, n)
			}
			st.suspected = true
		} else if wasSuspected {
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

func (d *PingAck) ReceiveMessage(msg wire.Message, from peer.Endpoint, learn LearnNeighborFunc) bool {
	switch m := msg.(type) {
	case *wire.Ping:
		// The sender's own advertised endpoint, not the transport-reported
		// source address: TCP dials a fresh ephemeral-port connection per
		// Send (transport/tcp.go), so replying to from would dial a
		// connection the sender already closed.
		sender := m.From
		if sender == (peer.Endpoint{}) {
			sender = from
		}

		d.mu.Lock()
		if _, known := d.peers[sender]; !known {
			d.mu.Unlock()
			learn(sender)
			d.mu.Lock()
		}
		if st, ok := d.peers[sender]; ok {
			st.suspected = false
		}
		tr := d.tr
		d.mu.Unlock()

		ack := wire.Ack{MessageID: fmt.Sprintf("%s-ack-%d", d.self, d.clock.NowMillis()), InResponse: m.MessageID, From: d.self}
		b, err := wire.Encode(&ack)
		if err != nil {
			logger.Debugf("pingack: encode ack: %v", err)
			return true
		}
		_ = tr.Send(sender, b)
		return true

	case *wire.Ack:
		sender := m.From
		if sender == (peer.Endpoint{}) {
			sender = from
		}

		d.mu.Lock()
		if _, known := d.peers[sender]; !known {
			d.mu.Unlock()
			learn(sender)
			d.mu.Lock()
		}
		if st, ok := d.peers[sender]; ok {
			st.lastReceiveAck = d.clock.NowMillis()
			st.suspected = false
		}
		d.mu.Unlock()
		return true

	default:
		return false
	}
}
