package detector

import (
	"testing"

	"fdnode/peer"
	"fdnode/wire"
)

func TestSlidingWindowAcceptableRoundtripNeverZero(t *testing.T) {
	st := newSlidingWindowPeerState(0)
	if st.acceptableRoundtrip() != 2000 {
		t.Fatalf("expected initial acceptableRoundtrip 2000, got %d", st.acceptableRoundtrip())
	}
}

func TestSlidingWindowNewPeerNotConvictedBeforeFirstHeartbeat(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 3000}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 3001}
	clock := &fakeClock{now: 1_700_000_000_000}
	var failed []peer.Endpoint
	d := NewHeartbeatSlidingWindow(self, func(e peer.Endpoint) { failed = append(failed, e) }, clock)
	d.AddNeighbor(n)

	// detectFailures runs immediately after the peer is added (no
	// heartbeat has arrived yet); the peer must not be convicted just
	// because lastReceivedHeartbeat was seeded, not observed.
	d.detectFailures()

	if len(failed) != 0 {
		t.Fatalf("expected no conviction for a freshly-added peer, got %v", failed)
	}
}

func TestSlidingWindowConvictsPastMeanPlusInterval(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 3000}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 3001}
	clock := &fakeClock{}
	var failed []peer.Endpoint
	d := NewHeartbeatSlidingWindow(self, func(e peer.Endpoint) { failed = append(failed, e) }, clock)
	d.AddNeighbor(n)

	clock.now = 4001 // mean 2000 + interval 2000 = 4000 threshold
	d.peers[n].lastReceivedHeartbeat = 0

	d.detectFailures()

	if len(failed) != 1 {
		t.Fatalf("expected one conviction, got %v", failed)
	}
}

func TestSlidingWindowSampleRecordedOnRecovery(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 3000}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 3001}
	clock := &fakeClock{now: 10000}
	d := NewHeartbeatSlidingWindow(self, nil, clock)
	d.AddNeighbor(n)
	st := d.peers[n]
	st.suspected = true
	st.suspectedAt = 8000 // recorded lastReceivedHeartbeat at conviction

	d.ReceiveMessage(&wire.Heartbeat{}, n, func(peer.Endpoint) {})

	if st.suspected {
		t.Fatal("expected recovery to clear suspected flag")
	}
	if st.samples[0] != 2000 {
		t.Fatalf("expected newest sample 2000 (10000-8000), got %d", st.samples[0])
	}
}
