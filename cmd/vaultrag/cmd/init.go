package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/vaultrag/internal/config"
	"github.com/Aman-CERP/vaultrag/internal/embed"
	"github.com/Aman-CERP/vaultrag/internal/output"
)

type initOptions struct {
	force    bool
	provider string
	model    string
	host     string
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a .vaultrag.yaml with the default settings",
		Long: `Write .vaultrag.yaml to the vault root (the current directory unless
--vault is given) with every setting at its default.

An existing file is kept unless --force is set; it is then backed up
next to the new one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing .vaultrag.yaml")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider: ollama, openai or static")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model")
	cmd.Flags().StringVar(&opts.host, "host", "", "Ollama endpoint or OpenAI-compatible base URL")

	return cmd
}

func runInit(cmd *cobra.Command, opts initOptions) error {
	dir := globals.vaultDir
	if dir == "" {
		dir = "."
	}
	root, err := resolveVaultRoot(dir)
	if err != nil {
		return err
	}

	cfg := config.NewConfig()
	if opts.provider != "" {
		if !embed.IsValidProvider(opts.provider) {
			return fmt.Errorf("unknown provider %q (valid: %v)", opts.provider, embed.ValidProviders())
		}
		cfg.Embeddings.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.Embeddings.Model = opts.model
	}
	if opts.host != "" {
		cfg.Embeddings.Host = opts.host
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	backup, err := config.WriteVaultConfig(root, cfg, opts.force)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if backup != "" {
		out.Statusf("", "Previous config saved to %s", backup)
	}
	out.Successf("Wrote %s", filepath.Join(root, config.ConfigFileName))
	if config.UserConfigExists() {
		out.Statusf("", "User config %s also applies; this file overrides it", config.GetUserConfigPath())
	}
	out.Status("", "Run 'vaultrag index' to build the index")
	return nil
}
