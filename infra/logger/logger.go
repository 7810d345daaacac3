package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	corelogger "github.com/kilianp07/dobi/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

var (
	level atomic.Int32

	fileMu sync.RWMutex
	file   io.Writer
)

func init() { level.Store(int32(zerolog.InfoLevel)) }

// SetLevel changes the minimum level of loggers created afterwards. Unknown
// names leave the level untouched and return false.
func SetLevel(name string) bool {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || name == "" {
		return false
	}
	level.Store(int32(lvl))
	return true
}

// FileOptions configures the rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SetFile mirrors loggers created afterwards into a size rotated file. An
// empty path turns the mirror off. The returned closer releases the file.
func SetFile(opts FileOptions) (io.Closer, error) {
	fileMu.Lock()
	defer fileMu.Unlock()
	if opts.Path == "" {
		file = nil
		return io.NopCloser(nil), nil
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	file = lj
	return lj, nil
}

func fileWriter() io.Writer {
	fileMu.RLock()
	defer fileMu.RUnlock()
	return file
}

// New returns a Logger for the given component. The output format is
// selected via the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}
