//go:build !windows

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchResume calls fn on every SIGUSR1 until ctx ends.
func watchResume(ctx context.Context, fn func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			fn()
		}
	}
}
