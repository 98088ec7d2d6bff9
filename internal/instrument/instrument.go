// Package instrument provides explicit boundary timing for component entry
// and exit points. Callers wrap an operation with a single deferred call:
//
//	defer instrument.Track("ingest", "Upload")()
package instrument

import (
	"log/slog"
	"time"
)

// Track logs entry to an operation and returns a func that logs exit with the
// elapsed duration. Both events are logged at Debug.
func Track(component, operation string) func() {
	start := time.Now()
	slog.Debug("enter", "component", component, "op", operation)
	return func() {
		slog.Debug("exit", "component", component, "op", operation,
			"elapsed", time.Since(start))
	}
}
