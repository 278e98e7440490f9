// Command graymoon-control runs the Control Service: the RPC Hub the Agent
// dials into, the Sync Queue, Dependency Solver, Push Scheduler, and the
// HTTP/realtime API. Grounded on the teacher's cmd/main.go bootstrap
// (context.WithCancel, db.New+Migrate, repositories.New, a sync.WaitGroup of
// concurrent server goroutines, signal-based graceful shutdown) wired to
// GrayMoon's control-side components instead of Station's SSH/MCP/API trio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"graymoon/internal/api"
	"graymoon/internal/config"
	"graymoon/internal/control/agentbridge"
	"graymoon/internal/control/broadcast"
	"graymoon/internal/control/depsolver"
	"graymoon/internal/control/pushscheduler"
	"graymoon/internal/control/registryprober"
	"graymoon/internal/control/rpchub"
	"graymoon/internal/control/syncqueue"
	"graymoon/internal/db"
	"graymoon/internal/db/repositories"
	"graymoon/internal/logging"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "graymoon-control",
	Short: "Run the GrayMoon Control Service",
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
	cfg, err := config.LoadControlConfig(configPath)
	if err != nil {
		return fmt.Errorf("load control config: %w", err)
	}
	logging.Initialize(cfg.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open control database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("migrate control database: %w", err)
	}

	repos := repositories.New(database.Conn())

	broadcaster, err := broadcast.New()
	if err != nil {
		return fmt.Errorf("start broadcast channel: %w", err)
	}
	defer broadcaster.Close()

	solver := depsolver.New(repos)

	hub := rpchub.New(func(sc rpc.SyncCommand) {
		onSyncCommand(ctx, repos, broadcaster, solver, sc)
	})
	bridge := agentbridge.New(hub)
	prober := registryprober.New()
	scheduler := pushscheduler.New(repos, bridge, prober, broadcaster, cfg.Workspace)
	syncQueue := syncqueue.New(repos, bridge, solver, broadcaster, cfg.Sync.MaxConcurrency, cfg.Sync.EnableDeduplication)
	apiServer := api.New(cfg, repos, hub, bridge, syncQueue, scheduler, solver, broadcaster)

	syncQueue.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(ctx); err != nil {
			logging.Error("control api server stopped: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	fmt.Println("\nshutting down control service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()
	syncQueue.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		fmt.Println("control service stopped gracefully")
	case <-shutdownCtx.Done():
		fmt.Println("shutdown timeout exceeded, forcing exit")
	}
	return nil
}

// onSyncCommand handles a fire-and-forget SyncCommand reported by the
// Agent after a local Notify job or sync completes (spec §4.5/§4.9):
// persist the reported state and fan out WorkspaceSynced, then
// re-derive the workspace's dependency levels since project exports may
// have shifted.
func onSyncCommand(ctx context.Context, repos *repositories.Repositories, b *broadcast.Channel, solver *depsolver.Solver, sc rpc.SyncCommand) {
	link, err := repos.Links.GetByWorkspaceAndRepo(ctx, sc.WorkspaceID, sc.RepositoryID)
	if err != nil {
		logging.Warn("sync command for unknown link workspace=%d repo=%d: %v", sc.WorkspaceID, sc.RepositoryID, err)
		return
	}

	ahead, behind, hasUpstream := int32(0), int32(0), false
	if sc.Outgoing != nil {
		ahead = *sc.Outgoing
	}
	if sc.Incoming != nil {
		behind = *sc.Incoming
	}
	if sc.HasUpstream != nil {
		hasUpstream = *sc.HasUpstream
	}

	if err := repos.Links.UpdateSyncResult(ctx, link.ID, sc.Version, sc.Branch, ahead, behind, hasUpstream, nil, models.SyncStatusInSync, nil); err != nil {
		logging.Error("persist sync command for link %d: %v", link.ID, err)
		return
	}

	if err := solver.Solve(ctx, sc.WorkspaceID); err != nil {
		logging.Warn("recompute dependency levels for workspace %d: %v", sc.WorkspaceID, err)
	}

	if err := b.Publish(sc.WorkspaceID); err != nil {
		logging.Error("publish WorkspaceSynced(%d): %v", sc.WorkspaceID, err)
	}
}
