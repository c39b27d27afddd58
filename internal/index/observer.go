package index

import (
	"log/slog"
	"time"

	"chunky/internal/logging"
)

// Observer receives progress callbacks from Build at fixed points of the
// scan. Implementations must not retain the arguments' backing storage.
type Observer interface {
	// WindowStart is called before the window's rows are read.
	WindowStart(w Window)

	// WindowBounds reports the first and last key values of a window.
	WindowBounds(w Window, first, last time.Time)

	// DayStart is called for every emitted entry, in order.
	DayStart(e Entry)
}

type nopObserver struct{}

func (nopObserver) WindowStart(Window)                        {}
func (nopObserver) WindowBounds(Window, time.Time, time.Time) {}
func (nopObserver) DayStart(Entry)                            {}

// LogObserver reports the scan to logger at debug level.
func LogObserver(logger *slog.Logger) Observer {
	return logObserver{logger: logging.Default(logger)}
}

type logObserver struct {
	logger *slog.Logger
}

func (o logObserver) WindowStart(w Window) {
	o.logger.Debug("reading window", "offset", w.Offset, "rows", w.Size)
}

func (o logObserver) WindowBounds(w Window, first, last time.Time) {
	o.logger.Debug("window bounds", "offset", w.Offset, "first", first, "last", last)
}

func (o logObserver) DayStart(e Entry) {
	o.logger.Debug("day start", "day", e.Day.Format(time.DateOnly), "offset", e.Offset)
}
