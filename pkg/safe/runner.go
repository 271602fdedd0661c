package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"tinyex.com/pkg/logger"
)

// Go runs fn on a new goroutine and logs, instead of crashing on, a panic.
func Go(fn func()) {
	GoCtx(context.Background(), func(context.Context) { fn() })
}

// GoCtx is Go with a context whose request id ends up on the panic log line.
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer Recover(ctx, "goroutine panic recovered")
		fn(ctx)
	}()
}

// Recover must be deferred directly. It logs the recovered value with the
// stack.
func Recover(ctx context.Context, msg string) {
	if r := recover(); r != nil {
		logger.Error(ctx, msg,
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())),
		)
	}
}
