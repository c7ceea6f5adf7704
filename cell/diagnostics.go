package cell

import (
	"log"
	"os"
	"os/signal"
	"syscall"
)

// InstallSIGUSR1Handler registers probe as this cell's diagnostic
// callback: the host supervisor's ForwardSIGUSR1 (host/supervisor.go)
// signals every live cell PID, and each cell is expected to answer
// with its own local state dump rather than die to the signal's
// default disposition. It returns a stop function that deregisters the
// handler; callers should defer it.
func InstallSIGUSR1Handler(logger *log.Logger, probe func() any) func() {
	if logger == nil {
		logger = log.Default()
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				logger.Printf("cell: SIGUSR1 probe: %v", probe())
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
