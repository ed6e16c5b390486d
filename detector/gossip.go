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

const gossipInterval = 10000 * time.Millisecond

// Gossip wraps any inner Detector and periodically broadcasts its
// suspect list to every current neighbor, merging remote suspect lists
// back into the inner detector on receipt (spec.md §4.3.6). It holds
// the inner detector by shared ownership, matching the teacher's own
// delegating-wrapper idiom rather than reimplementing detection logic.
type Gossip struct {
	inner Detector
	tr    transport.Transport
	self  peer.Endpoint

	mu        sync.Mutex
	neighbors *peer.Set
}

// NewGossip constructs a gossip decorator around inner.
func NewGossip(self peer.Endpoint, inner Detector) *Gossip {
	return &Gossip{
		inner:     inner,
		self:      self,
		neighbors: peer.NewSet(self, nil),
	}
}

func (g *Gossip) Initialize(tr transport.Transport, neighbors []peer.Endpoint) {
	g.mu.Lock()
	g.tr = tr
	for _, n := range neighbors {
		g.neighbors.Add(n)
	}
	g.mu.Unlock()
	g.inner.Initialize(tr, neighbors)
}

func (g *Gossip) AddNeighbor(n peer.Endpoint) {
	g.mu.Lock()
	g.neighbors.Add(n)
	g.mu.Unlock()
	g.inner.AddNeighbor(n)
}

func (g *Gossip) AddSuspects(suspects []peer.Endpoint) {
	g.inner.AddSuspects(suspects)
}

func (g *Gossip) SuspectedList() []peer.Endpoint {
	return g.inner.SuspectedList()
}

func (g *Gossip) DetectFailures(ctx context.Context) {
	g.inner.DetectFailures(ctx)
	go g.gossipLoop(ctx)
}

func (g *Gossip) gossipLoop(ctx context.Context) {
	ticker := time.NewTicker(gossipInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.broadcastSuspects()
		}
	}
}

func (g *Gossip) broadcastSuspects() {
	suspects := g.inner.SuspectedList()
	if len(suspects) == 0 {
		return
	}
	msg := wire.SuspectListMessage{Suspects: suspects, From: g.self}
	b, err := wire.Encode(&msg)
	if err != nil {
		logger.Debugf("gossip: encode suspect list: %v", err)
		return
	}
	g.mu.Lock()
	targets := g.neighbors.List()
	tr := g.tr
	g.mu.Unlock()
	for _, n := range targets {
		_ = tr.Send(n, b)
	}
}

// ReceiveMessage first offers msg to the inner detector; only if the
// inner detector declines does it try to consume a SuspectListMessage
// itself (spec.md §4.3.6).
func (g *Gossip) ReceiveMessage(msg wire.Message, from peer.Endpoint, learn LearnNeighborFunc) bool {
	wrappedLearn := func(n peer.Endpoint) {
		g.AddNeighbor(n)
		learn(n)
	}
	if g.inner.ReceiveMessage(msg, from, wrappedLearn) {
		return true
	}
	sl, ok := msg.(*wire.SuspectListMessage)
	if !ok {
		return false
	}
	// The sender's own advertised endpoint, not the transport-reported
	// source address: under TCP, from is an ephemeral per-message dial
	// port (transport/tcp.go), not the peer's listening endpoint.
	sender := sl.From
	if sender == (peer.Endpoint{}) {
		sender = from
	}
	wrappedLearn(sender)
	g.inner.AddSuspects(sl.Suspects)
	return true
}
