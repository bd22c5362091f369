package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLogFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultrag.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

var sampleLog = []string{
	`{"time":"2026-10-01T10:00:00Z","level":"INFO","msg":"index_started","run_id":"3f2a9c1e-aaaa","files":2}`,
	`{"time":"2026-10-01T10:00:01Z","level":"WARN","msg":"embedding_retry","run_id":"3f2a9c1e-aaaa"}`,
	`{"time":"2026-10-01T10:00:02Z","level":"INFO","msg":"index_complete","run_id":"3f2a9c1e-aaaa"}`,
	`{"time":"2026-10-01T11:00:00Z","level":"INFO","msg":"index_started","run_id":"77b0d4c2-bbbb"}`,
	`{"time":"2026-10-01T11:00:01Z","level":"ERROR","msg":"index_failed","run_id":"77b0d4c2-bbbb"}`,
}

func TestLogsCmd_Tail(t *testing.T) {
	isolateCLI(t)
	path := writeLogFile(t, sampleLog...)

	stdout, stderr, err := runCLI(t, "logs", "--file", path, "-n", "2")

	require.NoError(t, err)
	assert.Contains(t, stderr, "Log file: "+path)
	assert.NotContains(t, stdout, "embedding_retry")
	assert.Contains(t, stdout, "index_started")
	assert.Contains(t, stdout, "index_failed")
}

func TestLogsCmd_Filters(t *testing.T) {
	isolateCLI(t)
	path := writeLogFile(t, sampleLog...)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name:    "level",
			args:    []string{"--level", "warn"},
			want:    []string{"embedding_retry", "index_failed"},
			notWant: []string{"index_started", "index_complete"},
		},
		{
			name:    "run prefix",
			args:    []string{"--run", "77b0"},
			want:    []string{"index_started", "index_failed"},
			notWant: []string{"embedding_retry", "index_complete"},
		},
		{
			name:    "pattern",
			args:    []string{"--filter", "index_(complete|failed)"},
			want:    []string{"index_complete", "index_failed"},
			notWant: []string{"index_started", "embedding_retry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"logs", "--file", path}, tt.args...)
			stdout, _, err := runCLI(t, args...)

			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, stdout, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, stdout, w)
			}
		})
	}
}

func TestLogsCmd_Errors(t *testing.T) {
	isolateCLI(t)

	_, _, err := runCLI(t, "logs", "--file", filepath.Join(t.TempDir(), "missing.log"))
	assert.ErrorContains(t, err, "log file not found")

	path := writeLogFile(t, sampleLog...)
	_, _, err = runCLI(t, "logs", "--file", path, "--filter", "(")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestLogsCmd_AfterIndexRun(t *testing.T) {
	// Given: an index run logged to the default log file
	indexedVault(t)

	// When: showing the log
	stdout, _, err := runCLI(t, "logs", "--filter", "index_")

	// Then: the run's events are present
	require.NoError(t, err)
	assert.Contains(t, stdout, "index_started")
	assert.Contains(t, stdout, "index_complete")
}
