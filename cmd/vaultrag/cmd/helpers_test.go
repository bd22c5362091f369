package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/vaultrag/internal/embed"
)

// isolateCLI points HOME and the user config at temp directories and
// selects the offline embedder.
func isolateCLI(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv(embed.EmbedderEnv, "static")
	for _, k := range []string{
		"VAULTRAG_EMBEDDINGS_PROVIDER",
		"VAULTRAG_EMBEDDINGS_MODEL",
		"VAULTRAG_EMBEDDINGS_HOST",
		"VAULTRAG_CHUNK_SIZE",
		"VAULTRAG_MIN_SIMILARITY",
		"VAULTRAG_STORE_DRIVER",
		"VAULTRAG_LOG_LEVEL",
		"NO_COLOR",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

// newTestVault creates a vault with the given notes.
func newTestVault(t *testing.T, notes map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range notes {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// runCLI executes the root command and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

var gardenVault = map[string]string{
	"garden.md": "# Garden\nTomatoes need full sun and regular watering.\n",
	"work/db.md": "# Databases\nSQLite keeps the whole database in a single file.\n",
}
