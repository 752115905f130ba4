package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Run invokes fn and turns a panic into a logged event. It reports whether
// fn panicked.
func Run(logger *slog.Logger, name string, fn func()) (panicked bool) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			logger.Error("panic_recovered",
				slog.String("worker_name", name),
				slog.String("error", fmt.Sprintf("%v", r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
	return false
}

// Go runs fn on a new goroutine under Run.
func Go(logger *slog.Logger, name string, fn func()) {
	go Run(logger, name, fn)
}
