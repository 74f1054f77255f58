// internal/recovery/recovery.go
package recovery

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/ColonelBlimp/sirengate/internal/logging"
)

// HandlePanic should be deferred at the top of main() or goroutines.
// It logs panic details through the shared logger and exits with code 1.
// A detector that panics must not keep the traffic signal preempted, so
// the process dies instead of limping on.
func HandlePanic() {
	if r := recover(); r != nil {
		report(r)
		os.Exit(1)
	}
}

// HandlePanicFunc logs panic details, calls the provided cleanup function,
// then exits with code 1. Use for goroutines that hold resources (an open
// capture device) which must be released before the process dies.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		report(r)
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
}

func report(r any) {
	logging.GetLogger().Errorf("FATAL: %v", r)
	logging.Sync()
	// The stack goes straight to stderr; a panic may mean the logging
	// pipeline itself is not trustworthy.
	_, _ = fmt.Fprintf(os.Stderr, "\nStack trace:\n%s\n", debug.Stack())
}
