package allowlist

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// LoadFile reads an allowlist file: one address or CIDR per line, blank lines
// and '#' comments skipped.
func LoadFile(path string) ([]netip.Prefix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading allowlist file: %w", err)
	}

	var rules []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}

	prefixes, err := ParseRules(rules)
	if err != nil {
		return nil, fmt.Errorf("parsing allowlist file %s: %w", path, err)
	}
	return prefixes, nil
}

// Watcher reloads a Gate from an allowlist file whenever the file changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch loads path into gate and starts watching it for changes. Edits that
// fail to parse are logged and ignored, keeping the previous rule set.
//
// The watch is on the containing directory rather than the file itself so
// that editors which replace the file (rename-over-write) keep triggering
// events.
func Watch(gate *Gate, path string, logger *zap.Logger) (*Watcher, error) {
	prefixes, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	gate.Replace(prefixes)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating allowlist watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching allowlist dir: %w", err)
	}

	w := &Watcher{
		watcher: fsw,
		done:    make(chan struct{}),
	}

	go w.run(gate, path, logger)

	return w, nil
}

func (w *Watcher) run(gate *Gate, path string, logger *zap.Logger) {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			prefixes, err := LoadFile(path)
			if err != nil {
				logger.Warn("allowlist reload failed, keeping previous rules",
					zap.String("path", path),
					zap.Error(err),
				)
				continue
			}

			gate.Replace(prefixes)
			logger.Info("allowlist reloaded",
				zap.String("path", path),
				zap.Int("rule_count", len(prefixes)),
			)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("allowlist watcher error", zap.Error(err))
		}
	}
}

// Close stops watching and waits for the reload goroutine to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
