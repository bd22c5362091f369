package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

func TestRootCmd_Commands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"index", "search", "stats", "clear", "watch", "init", "logs", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"debug", "config", "vault", "profile-cpu", "profile-mem", "profile-trace"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	assert.True(t, root.PersistentFlags().Lookup("profile-trace").Hidden)
}

func TestRootCmd_ExplicitConfig(t *testing.T) {
	// Given: a config file outside the vault that sets an invalid chunk size
	isolateCLI(t)
	dir := newTestVault(t, map[string]string{
		"note.md":  "# Note\ntext\n",
		"alt.yaml": "indexing:\n  chunk_size: -1\n",
	})

	// When: passing it with --config
	_, _, err := runCLI(t, "--vault", dir, "--config", filepath.Join(dir, "alt.yaml"), "index", "--no-tui")

	// Then: it is the file that was loaded
	assert.ErrorContains(t, err, "chunk_size must be positive")
}

func TestFormatError(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		assert.Equal(t, "Error: boom\n", formatError(errors.New("boom"), false))
	})

	t.Run("vault error", func(t *testing.T) {
		err := vrerrors.New(vrerrors.ErrCodeFileNotFound, "no index found", nil).
			WithSuggestion("Run 'vaultrag index' first")

		got := formatError(err, false)

		assert.Contains(t, got, "Error: no index found\n")
		assert.Contains(t, got, "Hint: Run 'vaultrag index' first")
		assert.Contains(t, got, "Code: "+vrerrors.ErrCodeFileNotFound)
	})

	t.Run("debug", func(t *testing.T) {
		err := vrerrors.New(vrerrors.ErrCodeFileNotFound, "no index found", errors.New("stat failed"))

		got := formatError(err, true)

		assert.Contains(t, got, "no index found")
	})
}
