package node

import (
	"fmt"
	"sync"

	"fdnode/peer"
)

// Manager supervises several in-process nodes sharing one loopback
// address range. It backs the dashboard subcommand, which needs to
// spin up a small local cluster without a separate process per node.
type Manager struct {
	mu          sync.RWMutex
	nodes       []*Node
	nodeIndex   map[peer.Endpoint]int
	portCounter int
}

// NewManager creates an empty Manager; nodes are assigned loopback
// ports starting at startPort.
func NewManager(startPort int) *Manager {
	return &Manager{
		nodeIndex:   make(map[peer.Endpoint]int),
		portCounter: startPort,
	}
}

// CreateNode builds, starts, and registers a new node using base as a
// template (base.Self is overwritten with an auto-assigned loopback
// port); base.Neighbors should already list the rest of the cluster.
func (m *Manager) CreateNode(base Config) (*Node, error) {
	m.mu.Lock()
	port := m.portCounter
	m.portCounter++
	m.mu.Unlock()

	config := base
	config.Self = peer.Endpoint{Host: "127.0.0.1", Port: port}

	n, err := New(&config)
	if err != nil {
		return nil, fmt.Errorf("node manager: create node: %w", err)
	}
	if err := n.Start(); err != nil {
		return nil, fmt.Errorf("node manager: start node: %w", err)
	}

	m.mu.Lock()
	m.nodes = append(m.nodes, n)
	m.nodeIndex[n.Self()] = len(m.nodes) - 1
	m.mu.Unlock()

	return n, nil
}

// Nodes returns a snapshot of every managed node, in creation order.
func (m *Manager) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Node, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// StopAll stops every managed node, collecting (rather than stopping
// at) the first error.
func (m *Manager) StopAll() error {
	nodes := m.Nodes()
	var errs []error
	for _, n := range nodes {
		if err := n.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("node manager: errors stopping nodes: %v", errs)
	}
	return nil
}

// DeleteNode stops and removes the node at index i (in creation order).
func (m *Manager) DeleteNode(i int) error {
	m.mu.Lock()
	if i < 0 || i >= len(m.nodes) {
		m.mu.Unlock()
		return fmt.Errorf("node manager: index %d out of range", i)
	}
	n := m.nodes[i]
	m.nodes = append(m.nodes[:i:i], m.nodes[i+1:]...)
	delete(m.nodeIndex, n.Self())
	for j, other := range m.nodes {
		m.nodeIndex[other.Self()] = j
	}
	m.mu.Unlock()

	return n.Stop()
}
