// Package reload detects edits to the files a rule configuration was loaded
// from so the engine can swap its correlation rules without restarting.
package reload

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/timzifer/viewstate/config"
)

// stamp identifies one version of a rule file. A zero stamp with missing set
// marks a file that disappeared since it was last seen.
type stamp struct {
	modTime time.Time
	size    int64
	missing bool
}

func (s stamp) differs(other stamp) bool {
	if s.missing != other.missing {
		return true
	}
	return other.modTime.After(s.modTime) || other.size != s.size
}

// Watcher polls the root configuration, its modules and the files rules were
// declared in. Each edit or removal is reported by exactly one Check.
type Watcher struct {
	mu    sync.Mutex
	files map[string]stamp
}

// NewWatcher starts tracking the rule files of cfg loaded from root.
func NewWatcher(root string, cfg *config.Config) (*Watcher, error) {
	watcher := &Watcher{}
	if err := watcher.Update(root, cfg); err != nil {
		return nil, err
	}
	return watcher, nil
}

// Update replaces the tracked set with the rule files of cfg, for example
// after a reload pulled in a new module. Files that do not exist are skipped.
func (w *Watcher) Update(root string, cfg *config.Config) error {
	if w == nil {
		return nil
	}
	paths := config.RuleFiles(cfg)
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			paths = append(paths, abs)
		}
	}
	files := make(map[string]stamp, len(paths))
	for _, path := range paths {
		if _, dup := files[path]; dup {
			continue
		}
		current, ok := statRuleFile(path)
		if !ok || current.missing {
			continue
		}
		files[path] = current
	}
	w.mu.Lock()
	w.files = files
	w.mu.Unlock()
	return nil
}

// Files returns the tracked rule files in sorted order.
func (w *Watcher) Files() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.files))
	for path := range w.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Check returns the rule files that were edited, removed or restored since
// the previous call. Reported versions are remembered, so a file that stays
// broken after a failed reload is not reported again until it is edited.
func (w *Watcher) Check() ([]string, error) {
	if w == nil {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0)
	for path, known := range w.files {
		current, ok := statRuleFile(path)
		if !ok {
			continue
		}
		if known.differs(current) {
			changed = append(changed, path)
			w.files[path] = current
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// statRuleFile reports false for directories.
func statRuleFile(path string) (stamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{missing: true}, true
	}
	if info.IsDir() {
		return stamp{}, false
	}
	return stamp{modTime: info.ModTime(), size: info.Size()}, true
}
