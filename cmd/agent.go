package cmd

import (
	"context"
	"errors"
	"io"
	"os/signal"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/agentic-research/dmpath/internal/agent"
	"github.com/agentic-research/dmpath/internal/binding"
	"github.com/agentic-research/dmpath/internal/config"
)

// agentInstructions is handed to MCP clients on initialize.
const agentInstructions = `dmpath exposes live data models as a tree of named paths.

Paths are dot-separated identifiers such as "Car.Fuel" or "Tyres.FL".
Call list_modules first, then module_tree or list_members to discover
paths, and resolve_path to read a single value. A path that does not
resolve today may become valid once its module or feed produces it.`

func init() {
	rootCmd.AddCommand(agentCmd)
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Serve module data models to LLM agents over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
		defer stop()

		cfg, err := config.LoadWithFallback(configPath)
		if err != nil {
			return err
		}
		// stdout carries the protocol; logs go to stderr.
		rt, err := newRuntime(cfg, cmd.ErrOrStderr(), nil)
		if err != nil {
			return err
		}
		store, err := binding.Open(cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		tracker := binding.NewTracker(rt.manager, rt.logger, nil)
		defer tracker.Close()
		if err := tracker.Load(ctx, store); err != nil {
			return err
		}

		if err := rt.enableStartup(ctx); err != nil {
			return err
		}
		defer rt.close(context.Background())

		srv := agent.New(rt.manager, tracker, cfg.Engine.MaxDepth).
			MCPServer(cmd.Root().Version, server.WithInstructions(agentInstructions))

		return serveAgent(ctx, rt, srv, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// serveAgent runs the update loop next to an MCP session on in/out. Either one
// ending stops the other.
func serveAgent(ctx context.Context, rt *runtime, srv *server.MCPServer, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return rt.manager.Run(gctx, rt.cfg.Engine.TickInterval)
	})
	g.Go(func() error {
		defer cancel()
		rt.logger.Info().Msg("mcp server on stdio")
		err := server.NewStdioServer(srv).Listen(gctx, in, out)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
