package taskgraph

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampedWriter wraps an io.Writer and prefixes each line with a
// timestamp. It is safe for concurrent use and handles partial line writes.
type TimestampedWriter struct {
	w          io.Writer
	mu         sync.Mutex
	lineBuffer bytes.Buffer
	timeFunc   func() time.Time
}

func NewTimestampedWriter(w io.Writer) *TimestampedWriter {
	return &TimestampedWriter{
		w:        w,
		timeFunc: time.Now,
	}
}

// Write writes data to the underlying writer, prefixing each complete line
// with a [HH:MM:SS] timestamp. Partial lines are buffered until a newline.
func (tw *TimestampedWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	totalWritten := 0
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		if idx == -1 {
			tw.lineBuffer.Write(p)
			totalWritten += len(p)
			break
		}

		n, err := tw.writeCompleteLine(p[:idx])
		if err != nil {
			return totalWritten + n, err
		}
		totalWritten += idx + 1
		p = p[idx+1:]
	}

	return totalWritten, nil
}

func (tw *TimestampedWriter) writeCompleteLine(lineData []byte) (int, error) {
	timestamp := tw.timeFunc().Format("[15:04:05] ")

	var fullLine []byte
	if tw.lineBuffer.Len() > 0 {
		fullLine = append(tw.lineBuffer.Bytes(), lineData...)
		tw.lineBuffer.Reset()
	} else {
		fullLine = lineData
	}

	_, err := fmt.Fprintf(tw.w, "%s%s\n", timestamp, fullLine)
	if err != nil {
		return 0, fmt.Errorf("writing timestamped line: %w", err)
	}

	return len(lineData), nil
}

// Flush writes any buffered partial line with a timestamp.
func (tw *TimestampedWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.lineBuffer.Len() == 0 {
		return nil
	}

	timestamp := tw.timeFunc().Format("[15:04:05] ")
	_, err := fmt.Fprintf(tw.w, "%s%s\n", timestamp, tw.lineBuffer.Bytes())
	if err != nil {
		return fmt.Errorf("flushing partial line: %w", err)
	}
	tw.lineBuffer.Reset()

	return nil
}

// RunLog is the per-run event log file under the logs directory.
type RunLog struct {
	file *os.File
	*TimestampedWriter
}

// OpenRunLog creates <logsDir>/<runID>.log, creating the directory if needed.
func OpenRunLog(logsDir, runID string) (*RunLog, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}
	path := RunLogPath(logsDir, runID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	return &RunLog{file: file, TimestampedWriter: NewTimestampedWriter(file)}, nil
}

// Path returns the log file path.
func (l *RunLog) Path() string {
	return l.file.Name()
}

// Close flushes buffered content and closes the file.
func (l *RunLog) Close() error {
	if err := l.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// RunLogPath returns the log file path for a run ID.
func RunLogPath(logsDir, runID string) string {
	return filepath.Join(logsDir, runID+".log")
}

// LatestRunLog returns the most recently modified .log file in logsDir.
func LatestRunLog(logsDir string) (string, error) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return "", fmt.Errorf("reading logs directory: %w", err)
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(logsDir, entry.Name())
			latestMod = info.ModTime()
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no run logs found in %s", logsDir)
	}
	return latest, nil
}
