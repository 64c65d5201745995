package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with its stack. It must be
// called directly in a defer statement:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "settings watcher")
//	    ...
//	}()
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, and then runs
// callback. The callback only runs when a panic actually occurred.
func RecoverPanicWithCallback(logger *Logger, context string, callback func()) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
		if callback != nil {
			callback()
		}
	}
}

func logPanic(logger *Logger, context string, r interface{}) {
	logger.WithField("panic", r).
		WithField("stack", string(debug.Stack())).
		WithField("context", context).
		Error("PANIC recovered")
}
