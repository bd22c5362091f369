// Package vault discovers and reads the Markdown notes of a vault.
// Paths are always slash separated and relative to the vault root.
package vault

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

// DataDirName is the per-vault directory holding the store, lock and logs.
const DataDirName = ".vaultrag"

// File is a Markdown note in the vault.
type File struct {
	Path  string // Relative to vault root, slash separated
	MTime int64  // Last modification time, unix milliseconds
	Size  int64
}

// Vault lists and reads notes.
type Vault interface {
	ListMarkdownFiles(ctx context.Context) ([]File, error)
	ReadFile(ctx context.Context, f File) ([]byte, error)
}

// Directories never descended into.
var defaultExcludeDirs = []string{
	".git",
	".obsidian",
	".trash",
	"node_modules",
	DataDirName,
}

// FSVault is a Vault rooted at a directory on disk.
type FSVault struct {
	root string
}

var _ Vault = (*FSVault)(nil)

// Open returns a vault rooted at dir.
func Open(dir string) (*FSVault, error) {
	if dir == "" {
		dir = "."
	}
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, vrerrors.New(vrerrors.ErrCodeFileNotFound, "vault directory not found", err).
			WithDetail("path", absRoot)
	}
	if !info.IsDir() {
		return nil, vrerrors.ValidationError(fmt.Sprintf("vault path is not a directory: %s", absRoot), nil)
	}
	return &FSVault{root: absRoot}, nil
}

// Root returns the absolute vault directory.
func (v *FSVault) Root() string {
	return v.root
}

// ListMarkdownFiles walks the vault and returns every .md file sorted by path.
// Unreadable entries and symlinks are skipped.
func (v *FSVault) ListMarkdownFiles(ctx context.Context) ([]File, error) {
	var files []File

	err := filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip files we can't access
		}

		relPath, err := filepath.Rel(v.root, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if isExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 || !IsMarkdown(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		files = append(files, File{
			Path:  relPath,
			MTime: info.ModTime().UnixMilli(),
			Size:  info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadFile returns the content of f.
func (v *FSVault) ReadFile(ctx context.Context, f File) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	local := filepath.FromSlash(f.Path)
	if !filepath.IsLocal(local) {
		return nil, vrerrors.ValidationError(fmt.Sprintf("path outside vault: %s", f.Path), nil)
	}

	data, err := os.ReadFile(filepath.Join(v.root, local))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vrerrors.New(vrerrors.ErrCodeFileNotFound, "file not found", err).WithDetail("path", f.Path)
		}
		return nil, vrerrors.IOError("failed to read file", err).WithDetail("path", f.Path)
	}
	return data, nil
}

// IsMarkdown reports whether path has a .md extension.
func IsMarkdown(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}

func isExcludedDir(name string) bool {
	for _, dir := range defaultExcludeDirs {
		if name == dir {
			return true
		}
	}
	return false
}
