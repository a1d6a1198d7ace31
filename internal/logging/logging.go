package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const appName = "dupmover"

// Options configures Setup.
type Options struct {
	Verbosity int
	// LogFile is the JSON log destination. Empty selects the XDG state dir.
	LogFile string
	RunID   string
	Console io.Writer
}

// Logger bundles the configured logger with its file sink.
type Logger struct {
	zerolog.Logger
	Path string
	file *lumberjack.Logger
}

// Close flushes and closes the file sink.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Level maps a -v count to a zerolog level.
func Level(verbosity int) zerolog.Level {
	switch verbosity {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	case 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Setup builds a logger writing human-readable lines to the console and
// JSON lines to a rotating log file. The file always receives Info and
// above so every duplicate and skip is on record regardless of -v.
func Setup(opts Options) (*Logger, error) {
	path, err := resolvePath(opts.LogFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
	}

	consoleLevel := Level(opts.Verbosity)
	fileLevel := zerolog.InfoLevel
	if consoleLevel < fileLevel {
		fileLevel = consoleLevel
	}

	multi := zerolog.MultiLevelWriter(
		levelWriter{w: zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen}, min: consoleLevel},
		levelWriter{w: file, min: fileLevel},
	)

	ctx := zerolog.New(multi).Level(fileLevel).With().Timestamp()
	if opts.RunID != "" {
		ctx = ctx.Str("run_id", opts.RunID)
	}
	logger := ctx.Logger()
	if opts.Verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}

	logger.Debug().Int("verbosity", opts.Verbosity).Str("logFile", path).Msg("Logger initialized")

	return &Logger{Logger: logger, Path: path, file: file}, nil
}

func resolvePath(configured string) (string, error) {
	if configured != "" {
		abs, err := filepath.Abs(configured)
		if err != nil {
			return "", fmt.Errorf("failed to resolve log file path: %w", err)
		}
		return abs, nil
	}
	path, err := xdg.StateFile(filepath.Join(appName, appName+".log"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve state directory: %w", err)
	}
	return path, nil
}

// levelWriter drops events below min before handing them to w.
type levelWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (lw levelWriter) Write(p []byte) (int, error) {
	return lw.w.Write(p)
}

func (lw levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < lw.min {
		return len(p), nil
	}
	return lw.w.Write(p)
}

// LogDuration logs the duration of an operation
func LogDuration(logger zerolog.Logger, start time.Time, operation string) {
	logger.Info().
		Str("operation", operation).
		Dur("duration", time.Since(start)).
		Msg("Operation completed")
}
