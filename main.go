// Command fdnode runs a single node per the positional CLI contract in
// spec.md §6, or dispatches to the start/dashboard subcommands in
// fdnode/cmd for programmatic configuration.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fdnode/cmd"
	"fdnode/logger"
	"fdnode/node"
	"fdnode/peer"
)

const usage = `usage: fdnode <self-host:self-port> [neighbor1:port,neighbor2:port,...] [initialValue]

or:    fdnode start --self host:port [flags]
       fdnode dashboard [flags]
`

func main() {
	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "start" || args[0] == "dashboard") {
		cmd.Execute()
		return
	}

	if len(args) < 1 || len(args) > 3 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(0)
	}

	self, err := peer.Parse(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(0)
	}

	var neighbors []peer.Endpoint
	if len(args) >= 2 {
		neighbors, err = peer.ParseList(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprint(os.Stderr, usage)
			os.Exit(0)
		}
	}

	var initialValue string
	if len(args) == 3 {
		initialValue = strings.TrimSpace(args[2])
	}

	logger.Init("", true, false)

	config := node.DefaultConfig(self)
	config.Neighbors = neighbors
	config.InitialValue = initialValue

	n, err := node.New(config)
	if err != nil {
		logger.Errorf("fdnode: %v", err)
		os.Exit(1)
	}
	if err := n.Start(); err != nil {
		logger.Errorf("fdnode: %v", err)
		os.Exit(0)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if err := n.Stop(); err != nil {
		logger.Errorf("fdnode: error stopping: %v", err)
	}
	os.Exit(0)
}
