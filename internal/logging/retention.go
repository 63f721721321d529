package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget selects files in Dir whose base name matches Pattern (all
// files when empty). Exclude lists paths that are never removed.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes target files last modified more than retentionDays
// ago and returns the number removed. retentionDays <= 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	keep := make(map[string]bool)
	for _, t := range targets {
		for _, p := range t.Exclude {
			if abs := absPath(p); abs != "" {
				keep[abs] = true
			}
		}
	}

	removed := 0
	for _, t := range targets {
		for _, path := range expired(t, cutoff) {
			if keep[path] {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check permissions on the log and inbox directories"),
					String(FieldImpact, "old file remains on disk"),
				)
				continue
			}
			removed++
			logger.Debug("pruned old file", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	if removed > 0 {
		logger.Info("log retention complete", Int("removed", removed), Int("retention_days", retentionDays))
	}
	return removed
}

func expired(t RetentionTarget, cutoff time.Time) []string {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := strings.TrimSpace(t.Pattern)
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, e.Name()); err != nil || !ok {
				continue
			}
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, absPath(filepath.Join(dir, e.Name())))
	}
	return out
}

func absPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
