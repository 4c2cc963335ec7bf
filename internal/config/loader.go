package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env.local then .env into the process environment,
// tolerating either file's absence, before any config file is parsed.
func LoadEnvFiles() error {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Loader reads a config file from disk and can watch it for changes.
// Grounded on pkg/config/provider/file.go's fsnotify-backed watch loop,
// generalized from the teacher's generic byte-provider interface down to
// a single concrete file path since spec §6 only calls out local paths,
// URLs, and github refs as MAY-support, not a pluggable provider system.
type Loader struct {
	path string
}

// NewLoader builds a Loader for the config file at path.
func NewLoader(path string) (*Loader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &Loader{path: abs}, nil
}

// Load reads and parses the config file.
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", l.path, err)
	}
	return Parse(data)
}

// Watch reloads the config on every debounced write/create event to the
// file and invokes onChange with the new Config; parse/validate errors are
// logged and the previous config is left in effect. Blocks until ctx is
// canceled.
func (l *Loader) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(l.path)
	file := filepath.Base(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	const debounce = 100 * time.Millisecond
	var timer *time.Timer

	reload := func() {
		cfg, err := l.Load()
		if err != nil {
			slog.Error("config reload failed", "error", err)
			return
		}
		slog.Info("config reloaded", "path", l.path)
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}
