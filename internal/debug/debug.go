// Package debug provides opt-in trace logging for the indexing pipeline.
// It is deliberately not a third-party structured logger: the teacher tool
// uses the same hand-rolled writer-behind-a-mutex convention for its own
// debug output, and semindex follows it rather than reaching for a library
// the corpus never imports for this concern.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug can be flipped at build time:
//
//	go build -ldflags "-X github.com/standardbeagle/semindex/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	mu     sync.Mutex
	output io.Writer
	file   *os.File
)

// SetOutput sets the writer debug output is sent to. Pass nil to disable.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// InitLogFile opens a timestamped log file under the OS temp dir and routes
// debug output to it, returning the path so callers can surface it.
func InitLogFile() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(os.TempDir(), "semindex-debug-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("debug-%s.log", time.Now().Format("2006-01-02T150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("create debug log file: %w", err)
	}

	file = f
	output = f
	return path, nil
}

// Close closes any open debug log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		err := file.Close()
		file = nil
		output = nil
		return err
	}
	return nil
}

// Logf writes a formatted debug line if output has been configured.
func Logf(format string, args ...any) {
	mu.Lock()
	w := output
	mu.Unlock()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}
