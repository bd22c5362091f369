package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the maximum number of config backups to keep
	MaxBackups = 3

	// BackupSuffix is the file extension for backup files
	BackupSuffix = ".bak"
)

// BackupFile creates a timestamped copy of the config file at path and
// prunes older copies beyond MaxBackups. If path doesn't exist, it returns
// an empty string and nil error.
func BackupFile(path string) (string, error) {
	if !fileExists(path) {
		return "", nil
	}

	timestamp := time.Now().Format("20060102-150405.000")
	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, timestamp)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Best effort - the backup itself succeeded
	_ = cleanupOldBackups(path)

	return backupPath, nil
}

// ListBackups returns all backup files of the config file at path,
// newest first.
func ListBackups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var backups []string
	prefix := base + BackupSuffix + "."
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	// Timestamps sort lexically
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// cleanupOldBackups removes backups beyond MaxBackups, keeping the newest.
func cleanupOldBackups(path string) error {
	backups, err := ListBackups(path)
	if err != nil {
		return err
	}
	if len(backups) <= MaxBackups {
		return nil
	}
	for _, backup := range backups[MaxBackups:] {
		_ = os.Remove(backup)
	}
	return nil
}

// WriteVaultConfig writes cfg to the vault's .vaultrag.yaml. An existing
// file is kept unless force is set, in which case it is backed up first.
// Returns the backup path, if any.
func WriteVaultConfig(dir string, cfg *Config, force bool) (string, error) {
	path := filepath.Join(dir, ConfigFileName)

	var backup string
	if fileExists(path) {
		if !force {
			return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		var err error
		if backup, err = BackupFile(path); err != nil {
			return "", err
		}
	}

	if err := cfg.WriteYAML(path); err != nil {
		return backup, err
	}
	return backup, nil
}
