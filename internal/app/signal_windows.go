//go:build windows

package app

import "context"

func watchResume(ctx context.Context, fn func()) {
	<-ctx.Done()
}
