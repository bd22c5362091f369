package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/vaultrag/internal/config"
	"github.com/Aman-CERP/vaultrag/internal/embed"
	"github.com/Aman-CERP/vaultrag/internal/logging"
	"github.com/Aman-CERP/vaultrag/internal/store"
	"github.com/Aman-CERP/vaultrag/internal/vault"
)

// vaultEnv is the resolved vault a command works on.
type vaultEnv struct {
	root    string
	dataDir string
	cfg     *config.Config

	cleanup []func()
}

// loadVault resolves the vault root, loads its configuration and starts
// file logging at the configured level. Close releases what it opened.
func loadVault() (*vaultEnv, error) {
	root, err := resolveVaultRoot(globals.vaultDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadWithFile(root, globals.configFile)
	if err != nil {
		return nil, err
	}

	env := &vaultEnv{
		root:    root,
		dataDir: filepath.Join(root, vault.DataDirName),
		cfg:     cfg,
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
	logCfg.MaxFiles = cfg.Logging.MaxFiles
	if globals.debug {
		logCfg.Level = "debug"
	}
	prev := slog.Default()
	if cleanup, err := logging.SetupDefault(logCfg); err == nil {
		env.cleanup = append(env.cleanup, func() {
			slog.SetDefault(prev)
			cleanup()
		})
	}

	slog.Debug("vault_resolved",
		slog.String("root", root),
		slog.String("store", cfg.StorePath(env.dataDir)),
		slog.String("provider", cfg.Embeddings.Provider))
	return env, nil
}

// resolveVaultRoot uses dir when given, otherwise searches upward from the
// working directory.
func resolveVaultRoot(dir string) (string, error) {
	if dir == "" {
		return config.FindVaultRoot(".")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve vault path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("vault not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("vault is not a directory: %s", abs)
	}
	return abs, nil
}

// Close runs the cleanup functions in reverse order.
func (e *vaultEnv) Close() {
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
	e.cleanup = nil
}

// storePath is the database file of the vault.
func (e *vaultEnv) storePath() string {
	return e.cfg.StorePath(e.dataDir)
}

// storeExists reports whether the vault has been indexed before.
func (e *vaultEnv) storeExists() bool {
	_, err := os.Stat(e.storePath())
	return err == nil
}

// openStore opens the vault's vector store, creating the data directory.
func (e *vaultEnv) openStore(ctx context.Context) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(e.storePath()), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(ctx, store.Config{
		Path:   e.storePath(),
		Driver: e.cfg.Store.Driver,
	})
	if err != nil {
		return nil, err
	}
	e.cleanup = append(e.cleanup, func() { _ = st.Close() })
	return st, nil
}

// lock takes the data directory lock for a writing command.
func (e *vaultEnv) lock() error {
	l := store.NewDataLock(e.dataDir)
	if err := l.TryLock(); err != nil {
		return err
	}
	e.cleanup = append(e.cleanup, func() { _ = l.Unlock() })
	return nil
}

// embedConfig maps the embeddings section to the client factory config.
func (e *vaultEnv) embedConfig() embed.Config {
	return embed.Config{
		Provider:   embed.ParseProvider(e.cfg.Embeddings.Provider),
		Model:      e.cfg.Embeddings.Model,
		Host:       e.cfg.Embeddings.Host,
		Dimensions: e.cfg.Embeddings.Dimensions,
		CacheSize:  e.cfg.Embeddings.CacheSize,
		Timeout:    e.cfg.EmbeddingTimeout(),
	}
}

// embedClient creates the configured embedding client.
func (e *vaultEnv) embedClient(ctx context.Context) (embed.Client, error) {
	return embed.NewClient(ctx, e.embedConfig())
}

// backend names the effective embedding provider.
func (e *vaultEnv) backend() string {
	if env := os.Getenv(embed.EmbedderEnv); env != "" {
		return env
	}
	return e.cfg.Embeddings.Provider
}

// openVault opens the vault for reading notes.
func (e *vaultEnv) openVault() (*vault.FSVault, error) {
	return vault.Open(e.root)
}
