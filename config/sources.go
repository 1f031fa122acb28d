package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RuleFiles returns the absolute paths of the root configuration, every
// included module and every file a rule was declared in, sorted and without
// duplicates. Directories are skipped.
func RuleFiles(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	candidates := make([]string, 0, len(cfg.ModuleFiles)+len(cfg.Rules)+1)
	candidates = append(candidates, cfg.Source.File)
	candidates = append(candidates, cfg.ModuleFiles...)
	for _, rule := range cfg.Rules {
		candidates = append(candidates, rule.Source.File)
	}

	seen := make(map[string]struct{}, len(candidates))
	files := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		file := normalizeRuleFile(candidate)
		if file == "" {
			continue
		}
		if _, dup := seen[file]; dup {
			continue
		}
		seen[file] = struct{}{}
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

func normalizeRuleFile(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
