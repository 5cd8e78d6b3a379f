package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	loggerMu sync.RWMutex
	logLevel = new(slog.LevelVar)
	logger   = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// InitLogger configures the shared JSON logger and makes it the slog default.
// Accepts debug, info, warn, error. Unknown levels mean info.
func InitLogger(level string, w io.Writer) *slog.Logger {
	logLevel.Set(ParseLevel(level))
	if w == nil {
		w = os.Stdout
	}
	l := SetOutput(w)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the shared structured logger used across the service.
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetOutput redirects the shared logger, mostly for tests. It returns the new logger.
func SetOutput(w io.Writer) *slog.Logger {
	l := newLogger(w)
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	return l
}

// LogRequest emits the request_complete line for one HTTP request.
func LogRequest(ctx context.Context, attrs ...slog.Attr) {
	Logger().LogAttrs(ctx, slog.LevelInfo, "request_complete", attrs...)
}
