package app

import (
	"context"
	"errors"
)

// StartMessageProcessing hands inbound messages to the command handler.
func (a *App) StartMessageProcessing(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return errors.New("application is not initialized")
	}

	inboundCh := a.messageBus.SubscribeInbound(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.commandHandler.Run(ctx, inboundCh)
	}()
	return nil
}
