package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/vaultrag/internal/index"
	"github.com/Aman-CERP/vaultrag/internal/output"
	"github.com/Aman-CERP/vaultrag/internal/ui"
)

type indexOptions struct {
	reindexAll bool
	noTUI      bool
	noColor    bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the vault's notes",
		Long: `Bring the vector store in line with the vault.

New and modified notes are split into header sections, chunked and
embedded; deleted notes are removed from the store. Notes whose
modification time is unchanged are skipped.

Use --reindex-all to drop the active model's vectors and embed every note
again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Ctrl+C cancels the run; committed batches are kept and saved
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.reindexAll, "reindex-all", false, "Clear the active model's vectors and re-embed every note")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
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

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
		ui.WithVaultDir(env.root),
		ui.WithOnQuit(cancel),
	))
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}

	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: renderer,
		Config:   env.cfg,
		Vault:    v,
		Store:    st,
		Client:   client,
		Backend:  env.backend(),
	})
	if err != nil {
		_ = renderer.Stop()
		return err
	}

	result, runErr := runner.Run(ctx, index.RunnerConfig{ReindexAll: opts.reindexAll})
	_ = renderer.Stop()

	// The TUI clears its screen on exit
	if _, isTUI := renderer.(*ui.TUIRenderer); isTUI && result != nil {
		output.New(cmd.OutOrStdout()).Successf("%s", summarize(result))
	}
	if result != nil && !result.Failures.Empty() {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), result.Failures.String())
	}
	return runErr
}

// summarize renders a one-line run summary.
func summarize(r *index.Result) string {
	s := fmt.Sprintf("Indexed %d notes: %d/%d chunks embedded", r.Files, r.Embedded, r.Chunks)
	if r.Deleted > 0 {
		s += fmt.Sprintf(", %d removed", r.Deleted)
	}
	return s + fmt.Sprintf(" in %s", r.Duration.Round(100*time.Millisecond))
}
