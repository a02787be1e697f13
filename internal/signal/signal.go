package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Shutdown lists the signals that stop a command.
var Shutdown = []os.Signal{os.Interrupt, syscall.SIGTERM}

// NotifyContext returns a context cancelled on the first shutdown signal.
// Call stop to release the handler; a second signal after that kills the
// process as usual.
func NotifyContext() (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(context.Background(), Shutdown...)
}
