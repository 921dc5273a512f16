package app

import (
	"github.com/aatumaykin/shuttlewatch/internal/ipc"
)

// Shutdown stops every component in reverse start order and removes the PID
// file. Calling it on a stopped App does nothing.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shutdownInternal()
}

// shutdownInternal expects a.mu to be held.
func (a *App) shutdownInternal() error {
	if !a.started {
		return nil
	}
	a.logger.Info("🛑 shutting down")

	a.cancel()

	if a.telegram != nil {
		if err := a.telegram.Stop(); err != nil {
			a.logger.Error("failed to stop telegram connector", err)
		}
	}
	if a.maintenance != nil {
		a.maintenance.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	a.wg.Wait()

	if a.runtime != nil {
		if err := a.runtime.Close(); err != nil {
			a.logger.Error("failed to close docker client", err)
		}
	}

	var busErr error
	if a.messageBus != nil {
		if busErr = a.messageBus.Stop(); busErr != nil {
			a.logger.Error("failed to stop message bus", busErr)
		}
	}

	if err := ipc.Cleanup(a.config.Storage.Dir()); err != nil {
		a.logger.Error("failed to remove PID file", err)
	}

	a.started = false
	a.logger.Info("👋 shutdown complete")
	return busErr
}
