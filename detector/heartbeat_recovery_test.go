package detector

import (
	"testing"

	"fdnode/peer"
	"fdnode/wire"
)

func TestHeartbeatRecoveryInstallsNewRoundtrip(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 5000}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 5001}
	clock := &fakeClock{now: 6000}
	d := NewHeartbeatRecovery(self, nil, clock)
	d.AddNeighbor(n)
	st := d.peers[n]
	st.suspected = true
	st.lastReceivedHeartbeat = 1000 // silent for 5000ms

	d.ReceiveMessage(&wire.Heartbeat{}, n, func(peer.Endpoint) {})

	if st.suspected {
		t.Fatal("expected recovery to clear suspected flag")
	}
	if st.roundtripTime != 5000 {
		t.Fatalf("expected new roundtripTime 5000, got %d", st.roundtripTime)
	}
}

func TestHeartbeatRecoveryNoPeriodicUnmark(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 5000}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 5001}
	clock := &fakeClock{now: 100}
	d := NewHeartbeatRecovery(self, nil, clock)
	d.AddNeighbor(n)
	d.peers[n].suspected = true

	d.detectFailures() // must not unmark; only a received heartbeat does

	if !d.peers[n].suspected {
		t.Fatal("expected detectFailures to leave suspected peer suspected")
	}
}
