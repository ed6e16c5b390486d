package consensus

import (
	"context"
	"sync"
	"testing"

	"fdnode/peer"
	"fdnode/transport"
	"fdnode/wire"
)

// fakeClock provides deterministic, strictly increasing UTC timestamps.
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) NowMillisUTC() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// engineTransport is an in-process transport.Transport double that
// hands encoded payloads directly to registered engines, avoiding any
// real socket in unit tests.
type engineTransport struct {
	self     peer.Endpoint
	registry map[peer.Endpoint]*Engine
}

func (t *engineTransport) Send(to peer.Endpoint, payload []byte) error {
	msg, err := wire.Decode(payload)
	if err != nil {
		return err
	}
	target, ok := t.registry[to]
	if !ok {
		return nil
	}
	target.ReceiveMessage(msg, t.self)
	return nil
}

func (t *engineTransport) Serve(ctx context.Context, process transport.ProcessFunc) error {
	<-ctx.Done()
	return nil
}

func (t *engineTransport) LocalAddr() peer.Endpoint { return t.self }
func (t *engineTransport) Close() error              { return nil }

func TestCoordinatorDeterministicAcrossMembers(t *testing.T) {
	a := peer.Endpoint{Host: "127.0.0.1", Port: 1001}
	b := peer.Endpoint{Host: "127.0.0.1", Port: 1002}
	c := peer.Endpoint{Host: "127.0.0.1", Port: 1003}

	e1 := NewEngine(a, "A", nil, nil)
	e1.AddNeighbor(b)
	e1.AddNeighbor(c)
	e2 := NewEngine(b, "B", nil, nil)
	e2.AddNeighbor(a)
	e2.AddNeighbor(c)

	if e1.Coordinator(1) != e2.Coordinator(1) {
		t.Fatalf("coordinator(1) differs across members: %v vs %v", e1.Coordinator(1), e2.Coordinator(1))
	}
}

func TestQuorumStrictlyMoreThanHalf(t *testing.T) {
	e := NewEngine(peer.Endpoint{Host: "h", Port: 1}, "A", nil, nil)
	e.AddNeighbor(peer.Endpoint{Host: "h", Port: 2})
	e.AddNeighbor(peer.Endpoint{Host: "h", Port: 3})
	e.AddNeighbor(peer.Endpoint{Host: "h", Port: 4})
	// N=4, Q should be 3 (floor(4/2)+1 = 3)
	if q := e.quorumLocked(); q != 3 {
		t.Fatalf("expected quorum 3 for N=4, got %d", q)
	}
}

func TestThreeNodeSingleRoundDecide(t *testing.T) {
	a := peer.Endpoint{Host: "127.0.0.1", Port: 2001}
	b := peer.Endpoint{Host: "127.0.0.1", Port: 2002}
	c := peer.Endpoint{Host: "127.0.0.1", Port: 2003}

	registry := make(map[peer.Endpoint]*Engine)
	clock := &fakeClock{}

	ea := NewEngine(a, "A", nil, clock)
	eb := NewEngine(b, "B", nil, clock)
	ec := NewEngine(c, "C", nil, clock)
	registry[a], registry[b], registry[c] = ea, eb, ec

	for _, e := range []*Engine{ea, eb, ec} {
		e.tr = &engineTransport{self: e.self, registry: registry}
		for _, n := range []peer.Endpoint{a, b, c} {
			if n != e.self {
				e.AddNeighbor(n)
			}
		}
	}

	ea.StartConsensus()
	eb.StartConsensus()
	ec.StartConsensus()

	if ea.Value() != eb.Value() || eb.Value() != ec.Value() {
		t.Fatalf("expected converged value, got A=%q B=%q C=%q", ea.Value(), eb.Value(), ec.Value())
	}
}

func TestNegativeAckQuorumClearsStateWithoutTouchingDecision(t *testing.T) {
	e := NewEngine(peer.Endpoint{Host: "h", Port: 1}, "A", nil, nil)
	e.AddNeighbor(peer.Endpoint{Host: "h", Port: 2})
	e.AddNeighbor(peer.Endpoint{Host: "h", Port: 3})
	e.round = 5

	e.handleNegativeAck(wire.NegativeAck{Round: 5})
	e.handleNegativeAck(wire.NegativeAck{Round: 5})

	if e.Round() != 0 {
		t.Fatalf("expected round reset to 0 after negative-ack quorum, got %d", e.Round())
	}
	if e.Decision() != "A" {
		t.Fatalf("expected Decision untouched by negative-ack quorum, got %q", e.Decision())
	}
}

func TestDecideCarriesInnerValueNotRecord(t *testing.T) {
	e := NewEngine(peer.Endpoint{Host: "h", Port: 1}, "A", &engineTransport{self: peer.Endpoint{Host: "h", Port: 1}, registry: map[peer.Endpoint]*Engine{}}, nil)
	e.handleDecide(wire.Decide{Preference: "winner"})
	if e.Value() != "winner" {
		t.Fatalf("expected Value set to inner preference value, got %q", e.Value())
	}
}
