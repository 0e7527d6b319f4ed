// Command mcp-remote-proxy bridges a stdio MCP client (an editor, an agent
// runner) to a remote MCP server reachable over HTTP or SSE, handling OAuth
// authorization transparently.
package main

import (
	"context"
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

	log := bridgelog.New("mcp-remote-proxy")
	err := bridge.Run(ctx, os.Args[1:], log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(bridge.ExitCode(err))
}
