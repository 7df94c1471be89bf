package signal

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

// NotifyContext cancels the returned context on the first signal and exits the process on the
// second one, so a stuck shutdown can still be interrupted.
func NotifyContext(ctx context.Context, log *slog.Logger, sig ...os.Signal) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sig...)

	go func() {
		select {
		case s := <-sigCh:
			log.Info("got signal, shutting down", slog.String("signal", s.String()))
			cancel()
		case <-ctx.Done():
			return
		}
		s := <-sigCh
		log.Warn("got second signal, exiting", slog.String("signal", s.String()))
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
