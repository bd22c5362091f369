// Package cmd provides the CLI commands for vaultrag.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/internal/profiling"
	"github.com/Aman-CERP/vaultrag/pkg/version"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	debug      bool
	configFile string
	vaultDir   string
	profile    profiling.Options
}

var (
	globals        globalOptions
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the vaultrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaultrag",
		Short: "Semantic search over a Markdown vault",
		Long: `vaultrag splits the notes of a Markdown vault into header sections,
embeds them and stores the vectors in a local SQLite database for
similarity search.

Indexing is incremental: only notes whose modification time changed are
re-embedded, and notes removed from the vault are dropped from the store.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("vaultrag version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&globals.debug, "debug", false, "Log at debug level and show error details")
	cmd.PersistentFlags().StringVar(&globals.configFile, "config", "", "Config file to use instead of the vault's .vaultrag.yaml")
	cmd.PersistentFlags().StringVar(&globals.vaultDir, "vault", "", "Vault directory (default: found from the current directory)")

	cmd.PersistentFlags().StringVar(&globals.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&globals.profile.Heap, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&globals.profile.Trace, "profile-trace", "", "Write execution trace to file")
	_ = cmd.PersistentFlags().MarkHidden("profile-trace")

	cmd.PersistentPreRunE = startProfiling

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfiling(_ *cobra.Command, _ []string) error {
	if !globals.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(globals.profile)
	if err != nil {
		return err
	}
	profileSession = s
	return nil
}

func stopProfiling() {
	if profileSession == nil {
		return
	}
	if err := profileSession.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	profileSession = nil
}

// Execute runs the root command and prints a failure for the user.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	stopProfiling()
	if err != nil {
		fmt.Fprint(root.ErrOrStderr(), formatError(err, globals.debug))
	}
	return err
}

// formatError renders err for the terminal. Errors outside the VaultError
// family, such as flag parsing errors, are printed as is.
func formatError(err error, debug bool) string {
	if _, ok := vrerrors.As(err); !ok {
		return "Error: " + err.Error() + "\n"
	}
	if debug {
		return vrerrors.FormatForUser(err, true) + "\n"
	}
	return vrerrors.FormatForCLI(err)
}
