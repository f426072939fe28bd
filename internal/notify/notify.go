// Package notify decouples scheduled jobs from delivery channels through a
// registerable-handler broadcast.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Format hints passed to handlers alongside the message body.
const (
	FormatPlain = "plain"
	FormatHTML  = "HTML"
)

// Handler delivers a message to one channel. Implementations perform their
// own I/O and must not assume any store transaction is open.
type Handler func(ctx context.Context, message, format string) error

const failureDedupCapacity = 100

// Dispatcher fans a notification out to every registered handler. Delivery
// is best-effort: a failing handler is logged and skipped, never propagated
// to the caller, so one channel being down cannot abort a scheduler job.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []namedHandler
	logger   *slog.Logger
	failures *DedupMap
}

type namedHandler struct {
	name string
	fn   Handler
}

// NewDispatcher creates an empty dispatcher. Each transport registers its
// handler once at startup.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		logger:   logger.With("component", "notify"),
		failures: NewDedupMap(failureDedupCapacity, time.Hour),
	}
}

// RegisterHandler appends a delivery handler under a channel name used for
// failure logging.
func (d *Dispatcher) RegisterHandler(name string, fn Handler) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.handlers = append(d.handlers, namedHandler{name: name, fn: fn})
	d.mu.Unlock()
	d.logger.Info("Registered notification handler", "channel", name)
}

// HandlerCount returns the number of registered handlers.
func (d *Dispatcher) HandlerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Notify invokes every registered handler with the message. All handlers are
// attempted regardless of individual failures, and Notify itself never
// fails. Repeated identical delivery failures are deduplicated in the log
// through a bounded last-seen map.
func (d *Dispatcher) Notify(ctx context.Context, message, format string) {
	if format == "" {
		format = FormatPlain
	}

	d.mu.RLock()
	handlers := make([]namedHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.logger.DebugContext(ctx, "No notification handlers registered, dropping message")
		return
	}

	for _, h := range handlers {
		if err := d.invoke(ctx, h, message, format); err != nil {
			key := fmt.Sprintf("%s:%v", h.name, err)
			if d.failures.Seen(key, time.Now()) {
				continue
			}
			d.logger.ErrorContext(ctx, "Notification handler failed",
				"channel", h.name, "error", err)
		}
	}
}

// LogHandler returns a Handler that writes notifications to the log. It is
// registered unconditionally so messages are never silently dropped when no
// external channel is configured.
func LogHandler(logger *slog.Logger) Handler {
	log := logger.With("channel", "log")
	return func(ctx context.Context, message, format string) error {
		log.InfoContext(ctx, "Notification", "format", format, "message", message)
		return nil
	}
}

// invoke runs one handler, converting a panic into an error so a broken
// channel cannot take down a scheduler job.
func (d *Dispatcher) invoke(ctx context.Context, h namedHandler, message, format string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.fn(ctx, message, format)
}
