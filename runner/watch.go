package runner

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/vkrun/runner/core"
)

// debounceDelay coalesces the burst of write events editors emit when
// saving a file.
const debounceDelay = 100 * time.Millisecond

// Watch re-runs each script whenever its file changes, until interrupted.
func (r *Runner) Watch(paths []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(paths))
	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		watched[path] = true
	}

	r.RunAll(paths)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var pending map[string]bool
	var timer <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[event.Name] || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if pending == nil {
				pending = make(map[string]bool)
			}
			pending[event.Name] = true
			timer = time.After(debounceDelay)
		case <-timer:
			for path := range pending {
				result := r.RunFile(path)
				fmt.Printf("%s: %s\n", path, result)
			}
			pending = nil
			timer = nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			core.LogWarn("watcher: %v", err)
		case <-sigCh:
			return nil
		}
	}
}
