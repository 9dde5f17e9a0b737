package match

import (
	"log/slog"
	"os"
)

// logger reports soft failures (unknown ids, unfilled market orders) and
// invariant breaches. Only warnings and above are written until SetLogger is called.
var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// SetLogger replaces the package logger. A nil logger is ignored.
func SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	logger = l
}
