package node

import "errors"

var (
	ErrSelfRequired     = errors.New("node: self endpoint is required")
	ErrUnknownProtocol  = errors.New("node: unknown network protocol")
	ErrUnknownDetector  = errors.New("node: unknown failure detector")
	ErrUnknownConsensus = errors.New("node: unknown consensus algorithm")
)
