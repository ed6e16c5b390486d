package wire

import (
	"reflect"
	"testing"

	"fdnode/peer"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		&Ping{MessageID: "p1"},
		&Ack{MessageID: "a1", InResponse: "p1"},
		&Heartbeat{},
		&SuspectListMessage{Suspects: []peer.Endpoint{{Host: "h", Port: 1}}},
		&Preference{Round: 3, Preference: "A", Timestamp: 123},
		&CoordinatorPreference{Round: 3, Preference: "A"},
		&PositiveAck{Round: 3},
		&NegativeAck{Round: 3},
		&Decide{Preference: "A"},
		&RequestConsensus{Round: 1},
	}
	for _, m := range cases {
		b, err := Encode(m)
		if err != nil {
			t.Fatalf("encode %s: %v", m.Kind(), err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("decode %s: %v", m.Kind(), err)
		}
		if got.Kind() != m.Kind() {
			t.Fatalf("kind mismatch: got %s, want %s", got.Kind(), m.Kind())
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("round-trip mismatch for %s: got %#v, want %#v", m.Kind(), got, m)
		}
	}
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	if _, err := Decode([]byte("not a valid envelope")); err == nil {
		t.Fatal("expected error decoding garbage bytes")
	}
}
