// Package intake watches a drop folder and turns new or edited text files
// into fragments.
package intake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hpungsan/stream/internal/logger"
)

// DefaultDebounce batches the burst of events an editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// Extensions accepted by the watcher.
var Extensions = []string{".txt", ".md"}

// Options configures Watch.
type Options struct {
	Logger   *logger.Logger
	Debounce time.Duration
}

// Watch blocks until ctx is done, calling create with the trimmed content
// of every .txt or .md file created or written in dir. Blank files are
// skipped, and a file saved again with unchanged content is not re-created.
func Watch(ctx context.Context, dir string, create func(content string), opts Options) error {
	log := logger.OrNop(opts.Logger).With("component", "intake", "dir", dir)
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create intake dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info("watching for prompts")

	pending := make(map[string]time.Time)
	last := make(map[string]string)

	tick := time.NewTicker(tickInterval(debounce))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !accepted(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[ev.Name] = time.Now()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
				delete(last, ev.Name)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)

		case now := <-tick.C:
			for path, at := range pending {
				if now.Sub(at) < debounce {
					continue
				}
				delete(pending, path)

				content, err := readContent(path)
				if err != nil {
					log.Warn("read failed", "path", path, "error", err)
					continue
				}
				if content == "" || content == last[path] {
					continue
				}
				last[path] = content
				log.Debug("intake", "path", path)
				create(content)
			}
		}
	}
}

// tickInterval is how often pending paths are checked; never below 1ms.
func tickInterval(debounce time.Duration) time.Duration {
	return max(debounce/3, time.Millisecond)
}

func accepted(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func readContent(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
