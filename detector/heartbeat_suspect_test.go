package detector

import (
	"testing"

	"fdnode/peer"
	"fdnode/wire"
)

func TestSuspectLevelAcceptableRoundtripNeverZero(t *testing.T) {
	st := newSuspectLevelPeerState(0)
	if st.acceptableRoundtrip() != 2000 {
		t.Fatalf("expected initial acceptableRoundtrip 2000, got %d", st.acceptableRoundtrip())
	}
}

func TestSuspectLevelNewPeerNotConvictedBeforeFirstHeartbeat(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 3100}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 3101}
	clock := &fakeClock{now: 1_700_000_000_000}
	var failed []peer.Endpoint
	d := NewHeartbeatSuspectLevel(self, func(e peer.Endpoint) { failed = append(failed, e) }, clock)
	d.AddNeighbor(n)

	d.detectFailures()

	if len(failed) != 0 {
		t.Fatalf("expected no conviction for a freshly-added peer, got %v", failed)
	}
	if d.peers[n].level() != 0 {
		t.Fatalf("expected suspectLevel 0 for a freshly-added peer, got %d", d.peers[n].level())
	}
}

// TestDetectFailuresLevelMath drives detectFailures' floor(gap/mean)
// level computation directly, per spec.md §8 scenario 3's explicit
// boundary property (gap 3500ms -> n=1, gap 6500ms -> n=3, with the
// acceptable roundtrip fixed at the initial 2000ms sample mean).
func TestDetectFailuresLevelMath(t *testing.T) {
	tests := []struct {
		name          string
		gapMillis     int64
		wantLevel     int
		wantConvicted bool
	}{
		{"below one window", 1500, 0, false},
		{"exactly one window", 2000, 1, false},
		{"just under two windows", 3500, 1, false},
		{"exactly two windows", 4000, 2, false},
		{"just under three windows", 5500, 2, false},
		{"three windows convicts", 6500, 3, true},
		{"far past threshold still convicts", 9000, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			self := peer.Endpoint{Host: "127.0.0.1", Port: 3100}
			n := peer.Endpoint{Host: "127.0.0.1", Port: 3101}
			clock := &fakeClock{}
			var failed []peer.Endpoint
			d := NewHeartbeatSuspectLevel(self, func(e peer.Endpoint) { failed = append(failed, e) }, clock)
			d.AddNeighbor(n)

			clock.now = tt.gapMillis
			d.peers[n].lastReceivedHeartbeat = 0

			d.detectFailures()

			if got := d.peers[n].level(); got != tt.wantLevel {
				t.Fatalf("gap %dms: expected level %d, got %d", tt.gapMillis, tt.wantLevel, got)
			}
			if convicted := len(failed) == 1; convicted != tt.wantConvicted {
				t.Fatalf("gap %dms: expected convicted=%v, got %v", tt.gapMillis, tt.wantConvicted, convicted)
			}
		})
	}
}

func TestSuspectLevelHardSuspectStopsFurtherLevelClimbs(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 3100}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 3101}
	clock := &fakeClock{}
	var failed []peer.Endpoint
	d := NewHeartbeatSuspectLevel(self, func(e peer.Endpoint) { failed = append(failed, e) }, clock)
	d.AddNeighbor(n)

	clock.now = 6500
	d.peers[n].lastReceivedHeartbeat = 0
	d.detectFailures()
	if len(failed) != 1 {
		t.Fatalf("expected exactly one conviction, got %v", failed)
	}

	// Once suspected, detectFailures skips the peer entirely (spec.md
	// §4.3.5 recovery only happens on ReceiveMessage), so a further tick
	// must not re-fire onFail or bump the level past suspectLevelMaximum.
	clock.now = 20000
	d.detectFailures()
	if len(failed) != 1 {
		t.Fatalf("expected no second conviction while already suspected, got %v", failed)
	}
	if got := d.peers[n].level(); got != suspectLevelMaximum {
		t.Fatalf("expected level to stay at %d while already suspected, got %d", suspectLevelMaximum, got)
	}
}

func TestSuspectLevelReceiveMessageRecoversAndReducesSuspicion(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 3100}
	n := peer.Endpoint{Host: "127.0.0.1", Port: 3101}
	clock := &fakeClock{now: 10000}
	d := NewHeartbeatSuspectLevel(self, nil, clock)
	d.AddNeighbor(n)
	st := d.peers[n]
	st.suspected = true
	st.suspectedAt = 8000
	st.setLevel(suspectLevelMaximum)

	d.ReceiveMessage(&wire.Heartbeat{}, n, func(peer.Endpoint) {})

	if st.suspected {
		t.Fatal("expected recovery to clear suspected flag")
	}
	if st.samples[0] != 2000 {
		t.Fatalf("expected newest sample 2000 (10000-8000), got %d", st.samples[0])
	}
	if st.level() != suspectLevelMaximum-1 {
		t.Fatalf("expected reduceSuspicion to drop level by one, got %d", st.level())
	}
}

func TestReduceSuspicionFloorsAtZero(t *testing.T) {
	st := newSuspectLevelPeerState(0)
	st.reduceSuspicion()
	st.reduceSuspicion()
	if st.level() != 0 {
		t.Fatalf("expected level to stay at 0, got %d", st.level())
	}
}

func TestReduceSuspicionDecrementsByOne(t *testing.T) {
	st := newSuspectLevelPeerState(0)
	st.setLevel(3)
	st.reduceSuspicion()
	if st.level() != 2 {
		t.Fatalf("expected level 2 after one reduceSuspicion from 3, got %d", st.level())
	}
}
