// Command mcp-remote-client exercises the same Config Store, OAuth Provider
// and Transport Selector as mcp-remote-proxy against a remote MCP server, but
// prints the server's identity and tool list to stdout instead of bridging a
// stdio client — a loopback smoke test for a server/auth combination.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/viant/mcp-remote/bridge"
	"github.com/viant/mcp-remote/internal/bridgelog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := bridgelog.New("mcp-remote-client")
	result, err := bridge.RunProbe(ctx, os.Args[1:], log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(bridge.ExitCode(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}
