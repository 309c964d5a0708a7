package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// CreateContextWithShutdown returns a context that will report done when a
// SIGINT or SIGTERM is received. In-flight work should finish its current
// transaction before stopping; a second signal terminates immediately.
func CreateContextWithShutdown() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			log.Infof("Received %s: finishing in-flight files before stopping", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		<-c
		log.Warn("Received second signal: exiting immediately")
		os.Exit(1)
	}()
	return ctx
}
