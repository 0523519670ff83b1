package cmd

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentic-research/dmpath/internal/agent"
)

func TestServeAgent_InputClosedStopsUpdateLoop(t *testing.T) {
	rt, _ := testRuntime(t)
	require.NoError(t, rt.enableStartup(context.Background()))
	srv := agent.New(rt.manager, nil, rt.cfg.Engine.MaxDepth).MCPServer("test")

	done := make(chan error, 1)
	go func() {
		done <- serveAgent(context.Background(), rt, srv, strings.NewReader(""), io.Discard)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("update loop kept running after stdin closed")
	}
}

func TestServeAgent_CancelStopsSession(t *testing.T) {
	rt, _ := testRuntime(t)
	srv := agent.New(rt.manager, nil, rt.cfg.Engine.MaxDepth).MCPServer("test")
	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveAgent(ctx, rt, srv, in, io.Discard)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session kept blocking on stdin after cancel")
	}
}
