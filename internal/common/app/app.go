package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
)

// CreateContextWithShutdown returns a context that will report done when a SIGINT or SIGTERM is received
func CreateContextWithShutdown() *sizercontext.Context {
	return withShutdown(sizercontext.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func withShutdown(parent *sizercontext.Context, signals ...os.Signal) *sizercontext.Context {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			logrus.Warnf("Received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return sizercontext.New(ctx, parent.Log)
}
