package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/vaultrag/internal/embed"
	"github.com/Aman-CERP/vaultrag/internal/ui"
)

func TestClearCmd_ClearsActiveModel(t *testing.T) {
	// Given: an indexed vault
	dir := indexedVault(t)

	// When: clearing
	stdout, _, err := runCLI(t, "--vault", dir, "clear")

	// Then: the model's vectors are gone
	require.NoError(t, err)
	assert.Contains(t, stdout, "Cleared 2 vectors of "+embed.StaticModelID+" (256 dims)")

	stdout, _, err = runCLI(t, "--vault", dir, "stats", "--json")
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Zero(t, info.TotalRows())

	// And: the next index run embeds everything again
	stdout, _, err = runCLI(t, "--vault", dir, "index", "--no-tui")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Complete: 2 files, 2/2 chunks embedded")
}

func TestClearCmd_OtherModelIsKept(t *testing.T) {
	dir := indexedVault(t)

	stdout, _, err := runCLI(t, "--vault", dir, "clear", "--model", "retired-model", "--dimension", "768")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Cleared 0 vectors of retired-model (768 dims)")

	stdout, _, err = runCLI(t, "--vault", dir, "stats", "--json")
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, 2, info.TotalRows())
}

func TestClearCmd_Flags(t *testing.T) {
	t.Run("model requires dimension", func(t *testing.T) {
		dir := indexedVault(t)

		_, _, err := runCLI(t, "--vault", dir, "clear", "--model", "m")

		assert.Error(t, err)
	})

	t.Run("dimension must be positive", func(t *testing.T) {
		dir := indexedVault(t)

		_, _, err := runCLI(t, "--vault", dir, "clear", "--model", "m", "--dimension", "0")

		assert.ErrorContains(t, err, "--dimension must be positive")
	})
}

func TestClearCmd_NoIndex(t *testing.T) {
	isolateCLI(t)
	dir := newTestVault(t, gardenVault)

	stdout, _, err := runCLI(t, "--vault", dir, "clear")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Nothing to clear")
}

func TestModelClient_RefusesToEmbed(t *testing.T) {
	_, err := modelClient{embed.NewStaticClient()}.GetEmbedding(t.Context(), "x")

	assert.Error(t, err)
}
