package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sikap/api/internal/store"
)

type recordingWriter struct {
	mu      sync.Mutex
	written []store.Notification
	fail    map[int64]bool
	block   chan struct{}
}

func (w *recordingWriter) CreateNotification(ctx context.Context, n store.Notification) (store.Notification, error) {
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return store.Notification{}, ctx.Err()
		}
	}
	if w.fail[n.UserID] {
		return store.Notification{}, errors.New("insert failed")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, n)
	return n, nil
}

func (w *recordingWriter) users() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]int64, 0, len(w.written))
	for _, n := range w.written {
		ids = append(ids, n.UserID)
	}
	return ids
}

func TestDispatchWritesAfterDrain(t *testing.T) {
	w := &recordingWriter{}
	d := NewDispatcher(w, zerolog.Nop(), Options{Workers: 2, QueueSize: 8})

	d.Dispatch(1, "Folder Shared", "Ana shared the folder \"Q1\" with you", "/dashboard/archives")
	d.Dispatch(2, "Folder Shared", "Ana shared the folder \"Q1\" with you", "/dashboard/archives")
	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []int64{1, 2}, w.users())
}

func TestDispatchFailuresAreIsolated(t *testing.T) {
	var logs bytes.Buffer
	w := &recordingWriter{fail: map[int64]bool{2: true}}
	d := NewDispatcher(w, zerolog.New(&logs), Options{Workers: 1, QueueSize: 8})

	for _, id := range []int64{1, 2, 3} {
		d.Dispatch(id, "File Shared", "m", "")
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []int64{1, 3}, w.users())
	assert.Contains(t, logs.String(), "write notification")
}

func TestDispatchNeverBlocksWhenFull(t *testing.T) {
	var logs bytes.Buffer
	w := &recordingWriter{block: make(chan struct{})}
	d := NewDispatcher(w, zerolog.New(&logs), Options{Workers: 1, QueueSize: 1, WriteTimeout: time.Second})

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 10; i++ {
			d.Dispatch(i, "Message from Ana", "hi", "/dashboard/chat")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}

	close(w.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Less(t, len(w.users()), 10)
	assert.True(t, strings.Contains(logs.String(), "queue full"))
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	w := &recordingWriter{}
	d := NewDispatcher(w, zerolog.Nop(), Options{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Dispatch(1, "Account Security", "Your password was changed", "")
	assert.Empty(t, w.users())
}

func TestCloseRespectsContext(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	d := NewDispatcher(w, zerolog.Nop(), Options{Workers: 1, QueueSize: 4, WriteTimeout: time.Minute})
	d.Dispatch(1, "t", "m", "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(w.block)
}
