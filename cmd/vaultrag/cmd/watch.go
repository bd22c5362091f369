package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/vaultrag/internal/index"
	"github.com/Aman-CERP/vaultrag/internal/output"
	"github.com/Aman-CERP/vaultrag/internal/vault"
)

func newWatchCmd() *cobra.Command {
	var skipSync bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index current while notes change",
		Long: `Index the vault, then watch it and run an incremental index after
every burst of changes. Bursts are debounced by watch.debounce (500ms by
default). Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, skipSync)
		},
	}

	cmd.Flags().BoolVar(&skipSync, "skip-sync", false, "Do not index before watching")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, skipSync bool) error {
	env, err := loadVault()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.lock(); err != nil {
		return err
	}
	st, err := env.openStore(ctx)
	if err != nil {
		return err
	}
	client, err := env.embedClient(ctx)
	if err != nil {
		return err
	}
	v, err := env.openVault()
	if err != nil {
		return err
	}

	filter, err := vault.NewFilter(env.cfg.Indexing.Exclude, env.cfg.Indexing.Include)
	if err != nil {
		return err
	}
	watcher, err := vault.NewWatcher(env.root, vault.WatcherOptions{
		Debounce: env.cfg.WatchDebounce(),
		Filter:   filter,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	orchestrator := index.NewOrchestrator(v, st, index.OrchestratorOptions{
		Pipeline: index.PipelineOptions{
			BatchSize:   env.cfg.Indexing.BatchSize,
			Concurrency: env.cfg.Indexing.Concurrency,
		},
	})
	coordinator, err := index.NewCoordinator(index.CoordinatorConfig{
		Orchestrator:    orchestrator,
		Client:          client,
		Options:         index.OptionsFromConfig(env.cfg, false),
		SkipInitialSync: skipSync,
		OnUpdate: func(r *index.Result, err error) {
			switch {
			case err != nil && ctx.Err() == nil:
				out.Errorf("update failed: %v", err)
			case r != nil && (r.Files > 0 || r.Deleted > 0):
				out.Successf("%s", summarize(r))
			}
			if r != nil && !r.Failures.Empty() {
				out.Warningf("%d file(s) failed: %v", len(r.Failures.Files()), r.Failures.Files())
			}
		},
	})
	if err != nil {
		return err
	}

	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", env.root)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer func() { _ = watcher.Stop() }()
		return coordinator.Run(gctx, watcher)
	})
	return g.Wait()
}
