package taskgraph

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LogTailer streams new lines from a run log as they are written. It uses
// fsnotify for change detection with periodic polling as a backup.
type LogTailer struct {
	path    string
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	closed  bool
}

// NewLogTailer creates a LogTailer for the given file path. The file does
// not need to exist yet; the tailer waits for creation.
func NewLogTailer(path string) (*LogTailer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &LogTailer{
		path:    path,
		watcher: watcher,
	}, nil
}

// Tail streams lines from the log file over the returned channel. The
// channel is closed when the context is cancelled or, with follow false,
// after existing content has been dumped. Without follow the file must
// already exist; with follow the tailer waits for it to be created.
func (t *LogTailer) Tail(ctx context.Context, follow bool) (<-chan string, error) {
	if !follow {
		if _, err := os.Stat(t.path); err != nil {
			return nil, fmt.Errorf("run log %s: %w", t.path, err)
		}
	}

	lines := make(chan string, 100)

	go t.tailLoop(ctx, lines, follow)

	return lines, nil
}

// Close stops the tailer.
func (t *LogTailer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.watcher.Close()
}

func (t *LogTailer) tailLoop(ctx context.Context, lines chan<- string, follow bool) {
	defer close(lines)

	if err := t.waitForFile(ctx); err != nil {
		return
	}

	offset, err := t.readExistingContent(ctx, lines)
	if err != nil {
		return
	}

	if !follow {
		return
	}

	t.streamNewContent(ctx, lines, offset)
}

// waitForFile blocks until the log file exists or the context is cancelled.
func (t *LogTailer) waitForFile(ctx context.Context) error {
	if _, err := os.Stat(t.path); err == nil {
		return nil
	}

	parentDir := filepath.Dir(t.path)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := t.watcher.Add(parentDir); err != nil {
		return fmt.Errorf("watching parent directory: %w", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-t.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if event.Name == t.path && (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
				return nil
			}
		case <-ticker.C:
			if _, err := os.Stat(t.path); err == nil {
				return nil
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func (t *LogTailer) readExistingContent(ctx context.Context, lines chan<- string) (int64, error) {
	file, err := os.Open(t.path)
	if err != nil {
		return 0, fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	return t.scanAndSendLines(ctx, file, lines, 0)
}

func (t *LogTailer) scanAndSendLines(ctx context.Context, r io.Reader, lines chan<- string, offset int64) (int64, error) {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return offset, ctx.Err()
		case lines <- scanner.Text():
			offset += int64(len(scanner.Bytes())) + 1 // +1 for newline
		}
	}

	if err := scanner.Err(); err != nil {
		return offset, fmt.Errorf("scanning log file: %w", err)
	}

	return offset, nil
}

func (t *LogTailer) streamNewContent(ctx context.Context, lines chan<- string, offset int64) {
	if err := t.watcher.Add(t.path); err != nil {
		return
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			offset = t.readNewLines(ctx, lines, offset)
		case <-ticker.C:
			offset = t.readNewLines(ctx, lines, offset)
		case _, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			// Polling covers missed events.
		}
	}
}

func (t *LogTailer) readNewLines(ctx context.Context, lines chan<- string, offset int64) int64 {
	file, err := os.Open(t.path)
	if err != nil {
		return offset
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset
	}

	newOffset, err := t.scanAndSendLines(ctx, file, lines, offset)
	if err != nil {
		return offset
	}
	return newOffset
}
