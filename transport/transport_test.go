package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"fdnode/peer"
)

func TestUDPSendServeRoundTrip(t *testing.T) {
	recv, err := NewUDP(peer.Endpoint{Host: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("NewUDP recv: %v", err)
	}
	defer recv.Close()
	send, err := NewUDP(peer.Endpoint{Host: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("NewUDP send: %v", err)
	}
	defer send.Close()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go recv.Serve(ctx, func(payload []byte, from peer.Endpoint) {
		mu.Lock()
		got = payload
		mu.Unlock()
		close(done)
	})

	if err := send.Send(recv.LocalAddr(), []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestTCPSendServeRoundTrip(t *testing.T) {
	recv, err := NewTCP(peer.Endpoint{Host: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("NewTCP recv: %v", err)
	}
	defer recv.Close()

	done := make(chan []byte, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go recv.Serve(ctx, func(payload []byte, from peer.Endpoint) {
		done <- payload
	})

	send := &TCP{}
	if err := send.Send(recv.LocalAddr(), []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case payload := <-done:
		if string(payload) != "hello" {
			t.Fatalf("got %q, want %q", payload, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}
