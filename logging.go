package msgproj

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// newDefaultLogger is the logger used when ProjectOptions.Logger is nil.
func newDefaultLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
}
