package concurrency

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// SafeGo runs fn in a goroutine with panic recovery. name labels the
// goroutine in the panic log.
func SafeGo(name string, fn func(), onPanic func(interface{})) {
	go func() {
		defer Recover(name, onPanic)
		fn()
	}()
}

// Recover is the deferred half of SafeGo, usable on goroutines the caller
// already owns (errgroup members, tool invocations).
func Recover(name string, onPanic func(interface{})) {
	if r := recover(); r != nil {
		slog.Error("Panic recovered", "routine", name, "panic", r, "stack", string(debug.Stack()))
		if onPanic != nil {
			onPanic(r)
		}
	}
}

// CatchPanic runs fn synchronously and converts a panic into an error.
func CatchPanic(name string, fn func() error) (err error) {
	defer Recover(name, func(r interface{}) {
		err = fmt.Errorf("%s panicked: %v", name, r)
	})
	return fn()
}
