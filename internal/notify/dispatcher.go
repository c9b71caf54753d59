// Package notify delivers in-app notifications off the request path.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"sikap/api/internal/store"
)

// Writer persists a notification row.
type Writer interface {
	CreateNotification(ctx context.Context, n store.Notification) (store.Notification, error)
}

type Options struct {
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
}

// Dispatcher queues notifications and writes them from worker goroutines.
// Dispatch never blocks and never fails; a full queue drops the event.
type Dispatcher struct {
	writer  Writer
	log     zerolog.Logger
	timeout time.Duration

	queue chan store.Notification
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(writer Writer, log zerolog.Logger, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	d := &Dispatcher{
		writer:  writer,
		log:     log.With().Str("component", "notify").Logger(),
		timeout: opts.WriteTimeout,
		queue:   make(chan store.Notification, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Dispatch enqueues a notification for userID.
func (d *Dispatcher) Dispatch(userID int64, title, message, link string) {
	n := store.Notification{UserID: userID, Title: title, Message: message, Link: link}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn().Int64("user_id", userID).Str("title", title).Msg("notification dropped after shutdown")
		return
	}
	select {
	case d.queue <- n:
	default:
		d.log.Warn().Int64("user_id", userID).Str("title", title).Msg("notification queue full, dropping")
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		d.write(n)
	}
}

func (d *Dispatcher) write(n store.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if _, err := d.writer.CreateNotification(ctx, n); err != nil {
		d.log.Error().Err(err).Int64("user_id", n.UserID).Str("title", n.Title).Msg("write notification")
	}
}

// Close stops accepting notifications and waits for the queue to drain or
// ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
