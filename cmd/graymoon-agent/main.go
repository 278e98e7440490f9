// Command graymoon-agent runs the host-resident Agent: the Hook Listener,
// Job Queue, Command Dispatcher, Notify Handler, Worker Pool, and the RPC
// Link back to the Control Service. Grounded on the teacher's cmd/main.go
// bootstrap shape (context.WithCancel, config load, sync.WaitGroup of
// concurrent server goroutines, signal-based graceful shutdown), wired to
// GrayMoon's agent-side components instead of Station's SSH/MCP/API trio.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"graymoon/internal/agent/dispatcher"
	"graymoon/internal/agent/hooklistener"
	"graymoon/internal/agent/jobqueue"
	"graymoon/internal/agent/notifyhandler"
	"graymoon/internal/agent/rpclink"
	"graymoon/internal/agent/vcsexec"
	"graymoon/internal/agent/workerpool"
	"graymoon/internal/config"
	"graymoon/internal/logging"
	"graymoon/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "graymoon-agent",
	Short: "Run the GrayMoon host Agent",
	RunE:  runServe,
}

func main() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "directory to search for config.yaml")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAgentConfig(configPath)
	if err != nil {
		return fmt.Errorf("load agent config: %w", err)
	}
	logging.Initialize(cfg.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vcs := vcsexec.New()
	queue := jobqueue.New(cfg.MaxConcurrentCommands)
	dsp := dispatcher.New(vcs)
	link := rpclink.New(wsEndpoint(cfg.AppHubURL), version.GetVersionString(), queue)
	notify := notifyhandler.New(vcs, link)
	pool := workerpool.New(queue, dsp, notify, link, cfg.MaxConcurrentCommands)
	hooks := hooklistener.New(queue, cfg.ListenPort)

	pool.Start()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		link.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		if err := hooks.Run(ctx); err != nil {
			logging.Error("hook listener stopped: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	fmt.Println("\nshutting down agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// spec §12: cancel intake, close the Job Queue, then stop the pool, then
	// let the RPC Link's connection teardown follow from ctx cancellation.
	// pool.Stop cancels the workers' context, so envelopes still buffered in
	// the queue when it runs may be left unprocessed.
	cancel()
	queue.Close()
	pool.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		fmt.Println("agent stopped gracefully")
	case <-shutdownCtx.Done():
		fmt.Println("shutdown timeout exceeded, forcing exit")
	}
	return nil
}

// wsEndpoint rewrites the configured http(s) control URL to a ws(s) one
// and appends the agent RPC upgrade path (spec §6's GET /agent/ws).
func wsEndpoint(appHubURL string) string {
	u, err := url.Parse(appHubURL)
	if err != nil {
		return appHubURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/agent/ws"
	return u.String()
}
