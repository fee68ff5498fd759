package worker

import "github.com/brandonmcclure/classy/internal"

// Logger is the minimal logging surface the worker needs.
type Logger interface {
	Printf(format string, args ...interface{})
}

var defaultWorkerLogger Logger = internal.NewLogger("worker")
