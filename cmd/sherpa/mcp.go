package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/sherpa"
	mcpadapter "github.com/aretw0/sherpa/pkg/adapters/mcp"
	"github.com/aretw0/sherpa/pkg/session"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [flow-file]",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the flow as MCP tools so AI agents can start sessions,
navigate, toggle checklist items and inspect the graph.

Supported transports:
- stdio (default): standard input/output, for local process integration.
- sse: Server-Sent Events over HTTP, for remote agents or debuggers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		if transport == "" {
			transport = cfg.MCP.Transport
		}
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.MCP.Port
		}

		eng, err := sherpa.Load(flowPath(args))
		if err != nil {
			return err
		}
		store, err := buildStore()
		if err != nil {
			return err
		}
		sessions := session.NewManager(store, session.WithLogger(logger))
		srv := mcpadapter.NewServer(eng.Steps(), sessions, mcpadapter.WithLogger(logger))

		switch transport {
		case "stdio":
			// Stdout carries JSON-RPC; everything else goes to stderr.
			logger.Info("mcp server starting (stdio)", "flow", eng.Name)
			return srv.ServeStdio()
		case "sse":
			logger.Info("mcp server starting (sse)", "port", port, "flow", eng.Name)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("mcp server stopped")
			return nil
		default:
			return fmt.Errorf("unknown transport %q (supported: stdio, sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "", "Transport protocol: stdio or sse (default from config)")
	mcpCmd.Flags().Int("port", 0, "Port to listen on (sse only, default from config)")
}
