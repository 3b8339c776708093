package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds the whole shutdown.
const DefaultTimeout = 30 * time.Second

// CloseFunc allows using a function as an io.Closer
type CloseFunc func() error

func (f CloseFunc) Close() error {
	return f()
}

type namedService struct {
	name   string
	closer io.Closer
}

// Handler closes registered services in reverse registration order, so a
// service is closed before the ones it was built on.
type Handler struct {
	logger   *zap.Logger
	mu       sync.Mutex
	services []namedService
	timeout  time.Duration
}

func NewHandler(logger *zap.Logger, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{logger: logger.Named("shutdown"), timeout: timeout}
}

// Add registers a service for shutdown
func (h *Handler) Add(name string, closer io.Closer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services = append(h.services, namedService{name: name, closer: closer})
	h.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

func (h *Handler) AddFunc(name string, fn func() error) {
	h.Add(name, CloseFunc(fn))
}

// Shutdown closes every service once. A service that does not return
// before the deadline is reported and skipped.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	services := h.services
	h.services = nil
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.logger.Info("Starting graceful shutdown", zap.Int("services", len(services)))
	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		done := make(chan error, 1)
		go func() { done <- s.closer.Close() }()

		select {
		case err := <-done:
			if err != nil {
				h.logger.Error("Failed to shutdown service", zap.String("service", s.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				continue
			}
			h.logger.Debug("Service shutdown complete", zap.String("service", s.name))
		case <-ctx.Done():
			h.logger.Error("Shutdown timeout for service", zap.String("service", s.name))
			errs = append(errs, fmt.Errorf("%s: shutdown timeout", s.name))
		}
	}
	return errors.Join(errs...)
}
