package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fdnode/logger"
	"fdnode/node"
	"fdnode/peer"
)

var (
	startSelf      string
	startNeighbors string
	startProtocol  string
	startDetector  string
	startGossip    bool
	startVerbose   bool
	startValue     string
	startWarmup    time.Duration
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a single failure-detector/consensus node",
	Long: `Start a single node listening on --self, treating --neighbors as its
initial membership.

Examples:
  fdnode start --self 127.0.0.1:9000 --neighbors 127.0.0.1:9001,127.0.0.1:9002`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startSelf, "self", "", "this node's host:port (required)")
	startCmd.Flags().StringVar(&startNeighbors, "neighbors", "", "comma-separated host:port list")
	startCmd.Flags().StringVar(&startProtocol, "protocol", string(node.ProtocolUDP), "transport: UDP or TCP")
	startCmd.Flags().StringVar(&startDetector, "detector", string(node.DetectorHeartbeatSliding),
		"failure detector: PingAck, SimpleHeartbeat, HeartbeatRecovery, HeartbeatSlidingWindow, HeartbeatSuspectLevel")
	startCmd.Flags().BoolVar(&startGossip, "gossip", true, "wrap the detector in the gossip decorator")
	startCmd.Flags().BoolVar(&startVerbose, "verbose", false, "emit per-event debug traces")
	startCmd.Flags().StringVar(&startValue, "value", "", "this node's initial consensus value")
	startCmd.Flags().DurationVar(&startWarmup, "warmup", node.DefaultWarmup, "delay before the first StartConsensus call")
	startCmd.MarkFlagRequired("self")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger.Init("", true, startVerbose)

	self, err := peer.Parse(startSelf)
	if err != nil {
		return fmt.Errorf("--self: %w", err)
	}
	neighbors, err := peer.ParseList(startNeighbors)
	if err != nil {
		return fmt.Errorf("--neighbors: %w", err)
	}

	config := node.DefaultConfig(self)
	config.Neighbors = neighbors
	config.NetworkProtocol = node.Protocol(startProtocol)
	config.FailureDetector = node.DetectorKind(startDetector)
	config.Gossipping = startGossip
	config.Verbose = startVerbose
	config.InitialValue = startValue
	config.Warmup = startWarmup

	n, err := node.New(config)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := n.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if err := n.Stop(); err != nil {
		logger.Errorf("error stopping node: %v", err)
	}
	return nil
}
