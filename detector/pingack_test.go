package detector

import (
	"testing"

	"fdnode/peer"
)

// fakeClock lets tests drive NowMillis deterministically.
type fakeClock struct{ now int64 }

func (c *fakeClock) NowMillis() int64 { return c.now }

func TestPingAckConvictsPastToleranceWindow(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 1000}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 1001}
	clock := &fakeClock{}
	var failed []peer.Endpoint
	d := NewPingAck(self, func(e peer.Endpoint) { failed = append(failed, e) }, clock)
	d.AddNeighbor(n)

	st := d.peers[n]
	st.lastSentPing = 0
	st.lastReceiveAck = 0
	clock.now = 12000
	st.lastSentPing = 12000
	st.lastReceiveAck = 12000 - 10001 // gap of 10001ms, over tolerance

	d.detectFailures()

	if len(failed) != 1 || failed[0] != n {
		t.Fatalf("expected one conviction of %v, got %v", n, failed)
	}
	if !d.peers[n].suspected {
		t.Fatal("expected peer marked suspected")
	}
}

func TestPingAckToleratesWithinWindow(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 1000}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 1001}
	clock := &fakeClock{}
	var failed []peer.Endpoint
	d := NewPingAck(self, func(e peer.Endpoint) { failed = append(failed, e) }, clock)
	d.AddNeighbor(n)

	st := d.peers[n]
	st.lastSentPing = 12000
	st.lastReceiveAck = 12000 - 8000 // 8s gap, within 10s tolerance

	d.detectFailures()

	if len(failed) != 0 {
		t.Fatalf("expected no conviction, got %v", failed)
	}
}

func TestPingAckNoAckYetIsNotSuspected(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 1000}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 1001}
	clock := &fakeClock{}
	var failed []peer.Endpoint
	d := NewPingAck(self, func(e peer.Endpoint) { failed = append(failed, e) }, clock)
	d.AddNeighbor(n)

	st := d.peers[n]
	st.lastSentPing = 12000
	st.lastReceiveAck = 0 // never acked yet

	d.detectFailures()

	if len(failed) != 0 {
		t.Fatalf("expected no conviction for never-acked peer, got %v", failed)
	}
	if d.peers[n].suspected {
		t.Fatal("expected peer not suspected while awaiting first ack")
	}
}

func TestPingAckSelfExcludedFromNeighbors(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 1000}
	d := NewPingAck(self, nil, nil)
	d.AddNeighbor(self)
	if len(d.peers) != 0 {
		t.Fatalf("expected self excluded from peers, got %d entries", len(d.peers))
	}
}
