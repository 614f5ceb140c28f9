package bank

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	backupPrefix = "question_bank_"
	backupSuffix = ".json"
	// Fixed width, so lexicographic order is chronological.
	backupTimeFormat = "20060102T150405.000000000Z"
)

// backup copies the current bank file into dir and prunes all but the
// newest keep copies. Failures are logged and never returned.
func backup(path, dir string, keep int, now time.Time) {
	if keep <= 0 {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("bank backup skipped", "dir", dir, "error", err)
		return
	}

	dest := filepath.Join(dir, backupPrefix+now.UTC().Format(backupTimeFormat)+backupSuffix)
	if err := copyFile(path, dest); err != nil {
		slog.Warn("bank backup failed", "dest", dest, "error", err)
	}

	pruneBackups(dir, keep)
}

func pruneBackups(dir string, keep int) {
	backups, err := listBackups(dir)
	if err != nil {
		slog.Warn("listing bank backups failed", "dir", dir, "error", err)
		return
	}
	if len(backups) <= keep {
		return
	}
	for _, old := range backups[:len(backups)-keep] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			slog.Warn("pruning bank backup failed", "path", old, "error", err)
		}
	}
}

// listBackups returns backup paths oldest first.
func listBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying: %w", err)
	}
	return out.Close()
}
