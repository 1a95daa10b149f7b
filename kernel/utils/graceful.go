package utils

import (
	"context"
	"sync"
	"time"
)

// GracefulShutdown runs registered close hooks in reverse registration order
// under a shared deadline.
type GracefulShutdown struct {
	mu      sync.Mutex
	hooks   []namedHook
	timeout time.Duration
	logger  *Logger
}

type namedHook struct {
	name string
	fn   func(context.Context) error
}

// NewGracefulShutdown creates a new graceful shutdown manager
func NewGracefulShutdown(timeout time.Duration, logger *Logger) *GracefulShutdown {
	if logger == nil {
		logger = DefaultLogger("shutdown")
	}
	return &GracefulShutdown{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a hook. Hooks registered later run first.
func (g *GracefulShutdown) Register(name string, fn func(context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.hooks = append(g.hooks, namedHook{name: name, fn: fn})
}

// Shutdown runs every hook and returns the first error, or a timeout error
// when the deadline passes before all hooks return.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	hooks := make([]namedHook, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.Unlock()

	g.logger.Info("Starting graceful shutdown", Int("components", len(hooks)))

	shutdownCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var first error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i].fn(shutdownCtx); err != nil {
				g.logger.Error("Shutdown hook failed", String("hook", hooks[i].name), Err(err))
				if first == nil {
					first = err
				}
			}
		}
		done <- first
	}()

	select {
	case err := <-done:
		if err == nil {
			g.logger.Info("Graceful shutdown complete")
		}
		return err
	case <-shutdownCtx.Done():
		g.logger.Warn("Graceful shutdown timed out")
		return NewError("shutdown timeout")
	}
}
