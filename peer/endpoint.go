// Package peer defines the identity type every other package in this
// module uses to name a participant: a bare (host, port) pair. Nothing
// here knows about failure detection, transport, or consensus — it is
// the one thing the whole system agrees on before any of that starts.
package peer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Endpoint identifies a peer by host and port. Two endpoints are equal
// iff their Host and Port fields are equal; there is no separate node
// identifier, generation number, or incarnation — the spec this module
// implements treats (host, port) as the whole identity.
type Endpoint struct {
	Host string
	Port int
}

// String renders the endpoint the way it is read back: "host:port".
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Less orders endpoints lexicographically by (Host, Port). Sorting a
// membership snapshot with Less gives every node in the cluster the same
// ordering, which is what makes coordinator(round) deterministic.
func (e Endpoint) Less(other Endpoint) bool {
	if e.Host != other.Host {
		return e.Host < other.Host
	}
	return e.Port < other.Port
}

// Parse splits "host:port" into an Endpoint. Both host and port are
// required; the port must be a valid non-negative integer.
func Parse(s string) (Endpoint, error) {
	host, portStr, ok := strings.Cut(s, ":")
	if !ok || host == "" || portStr == "" {
		return Endpoint{}, fmt.Errorf("peer: invalid endpoint %q, want host:port", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 {
		return Endpoint{}, fmt.Errorf("peer: invalid port in %q: %w", s, err)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// ParseList splits a comma-separated "host:port,host:port" list. An empty
// string yields an empty, non-nil slice.
func ParseList(s string) ([]Endpoint, error) {
	if strings.TrimSpace(s) == "" {
		return []Endpoint{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]Endpoint, 0, len(parts))
	for _, p := range parts {
		e, err := Parse(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// SortAsc returns a new copy of endpoints sorted ascending by Less.
// Set.List uses it; the consensus engine sorts its membership snapshot
// with the same Less ordering.
func SortAsc(endpoints []Endpoint) []Endpoint {
	out := make([]Endpoint, len(endpoints))
	copy(out, endpoints)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Set is a monotonically-growing, concurrency-unsafe collection of
// endpoints. Callers that share a Set across goroutines must guard it
// themselves (every caller in this module already holds some other lock
// when touching neighbor membership).
type Set struct {
	members map[Endpoint]struct{}
	self    Endpoint
}

// NewSet creates a Set seeded with the given neighbors, always excluding
// self — "self is never in its own neighbor set" is an invariant enforced
// here once rather than at every call site.
func NewSet(self Endpoint, neighbors []Endpoint) *Set {
	s := &Set{members: make(map[Endpoint]struct{}, len(neighbors)), self: self}
	for _, n := range neighbors {
		s.Add(n)
	}
	return s
}

// Add inserts n unless it is self or already present. Returns true if n
// was newly added.
func (s *Set) Add(n Endpoint) bool {
	if n == s.self {
		return false
	}
	if _, ok := s.members[n]; ok {
		return false
	}
	s.members[n] = struct{}{}
	return true
}

// Contains reports whether n is a known neighbor.
func (s *Set) Contains(n Endpoint) bool {
	_, ok := s.members[n]
	return ok
}

// List returns a sorted snapshot of the current neighbors.
func (s *Set) List() []Endpoint {
	out := make([]Endpoint, 0, len(s.members))
	for n := range s.members {
		out = append(out, n)
	}
	return SortAsc(out)
}

// Len returns the number of known neighbors (excluding self).
func (s *Set) Len() int {
	return len(s.members)
}
