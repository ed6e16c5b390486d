package node

import (
	"testing"

	"fdnode/peer"
	"fdnode/wire"
)

func TestConfigValidateRejectsUnknownDetector(t *testing.T) {
	c := DefaultConfig(peer.Endpoint{Host: "127.0.0.1", Port: 9000})
	c.FailureDetector = "NotARealDetector"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown detector")
	}
}

func TestConfigValidateRejectsMissingSelf(t *testing.T) {
	c := DefaultConfig(peer.Endpoint{})
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing self endpoint")
	}
}

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	c := DefaultConfig(peer.Endpoint{Host: "127.0.0.1", Port: 9001})
	if err := c.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestNewRejectsNilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

// appPing is a stand-in for an application-defined message kind,
// registered only for this test, demonstrating that a message neither
// the failure detector nor the consensus engine recognizes falls
// through to the user's own handler (spec.md §4.5).
type appPing struct{ Text string }

func (appPing) Kind() string { return "test.appPing" }

func init() {
	wire.Register("test.appPing", func() wire.Message { return &appPing{} })
}

func TestProcessDispatchesUnclaimedMessageToUserHandler(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 0}
	from := peer.Endpoint{Host: "127.0.0.1", Port: 1}

	var gotMsg wire.Message
	var gotFrom peer.Endpoint
	c := DefaultConfig(self)
	c.ReceiveMessageFunc = func(msg interface{}, f peer.Endpoint) {
		gotMsg = msg.(wire.Message)
		gotFrom = f
	}

	n, err := New(c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.tr.Close()

	b, err := wire.Encode(&appPing{Text: "hi"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	n.process(b, from)

	if gotMsg == nil {
		t.Fatal("expected unrecognized message to reach the user handler")
	}
	if gotFrom != from {
		t.Fatalf("expected sender %v, got %v", from, gotFrom)
	}
}

func TestLearnNeighborIsIdempotent(t *testing.T) {
	self := peer.Endpoint{Host: "127.0.0.1", Port: 0}
	c := DefaultConfig(self)
	n, err := New(c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.tr.Close()

	other := peer.Endpoint{Host: "127.0.0.1", Port: 9999}
	n.learnNeighbor(other)
	n.learnNeighbor(other)

	if !n.neighbors.Contains(other) {
		t.Fatal("expected neighbor learned")
	}
	if n.neighbors.Len() != 1 {
		t.Fatalf("expected exactly 1 neighbor after learning the same peer twice, got %d", n.neighbors.Len())
	}
}
