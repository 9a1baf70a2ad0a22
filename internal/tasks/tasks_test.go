package tasks

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, Backoff: time.Second, MaxBackoff: 5 * time.Second}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(40))
}

func TestPolicyExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
}

func TestRedactHidesBody(t *testing.T) {
	data, err := encode(KindPersistMessage, PersistMessage{ChatID: 1, Number: 2, Body: "secret"})
	require.NoError(t, err)

	out := string(redact(KindPersistMessage, data))
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "<6 bytes>")
}

func TestDispatchUnknownKind(t *testing.T) {
	err := dispatch(context.Background(), &recorder{}, Kind("nope"), []byte("{}"))
	assert.Error(t, err)
}

// recorder is a Handler that fails the first failures calls per kind.
type recorder struct {
	mu       sync.Mutex
	failures int
	calls    map[Kind]int
	chats    []PersistChat
	messages []PersistMessage
}

func (r *recorder) attempt(k Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[Kind]int)
	}
	r.calls[k]++
	if r.calls[k] <= r.failures {
		return errors.New("transient")
	}
	return nil
}

func (r *recorder) PersistChat(_ context.Context, t PersistChat) error {
	if err := r.attempt(KindPersistChat); err != nil {
		return err
	}
	r.mu.Lock()
	r.chats = append(r.chats, t)
	r.mu.Unlock()
	return nil
}

func (r *recorder) PersistMessage(_ context.Context, t PersistMessage) error {
	if err := r.attempt(KindPersistMessage); err != nil {
		return err
	}
	r.mu.Lock()
	r.messages = append(r.messages, t)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() (int, int, map[Kind]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make(map[Kind]int, len(r.calls))
	for k, v := range r.calls {
		calls[k] = v
	}
	return len(r.chats), len(r.messages), calls
}

func startMemory(t *testing.T, e *MemoryExecutor, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Start(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = e.Close()
	})
}

func TestMemoryExecutorRunsTasks(t *testing.T) {
	e := NewMemoryExecutor(16, 2, Policy{MaxAttempts: 3, Backoff: time.Millisecond}, zap.NewNop(), nil)
	h := &recorder{}
	startMemory(t, e, h)

	ctx := context.Background()
	require.NoError(t, e.EnqueuePersistChat(ctx, PersistChat{ApplicationID: 1, Number: 1}))
	require.NoError(t, e.EnqueuePersistMessage(ctx, PersistMessage{ChatID: 1, Number: 1, Body: "hi"}))

	assert.Eventually(t, func() bool {
		chats, messages, _ := h.snapshot()
		return chats == 1 && messages == 1
	}, time.Second, 5*time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, PersistMessage{ChatID: 1, Number: 1, Body: "hi"}, h.messages[0])
	h.mu.Unlock()
}

func TestMemoryExecutorRetriesThenSucceeds(t *testing.T) {
	e := NewMemoryExecutor(16, 1, Policy{MaxAttempts: 5, Backoff: time.Millisecond}, zap.NewNop(), nil)
	h := &recorder{failures: 2}
	startMemory(t, e, h)

	require.NoError(t, e.EnqueuePersistChat(context.Background(), PersistChat{ApplicationID: 1, Number: 1}))

	assert.Eventually(t, func() bool {
		chats, _, _ := h.snapshot()
		return chats == 1
	}, time.Second, 5*time.Millisecond)

	_, _, calls := h.snapshot()
	assert.Equal(t, 3, calls[KindPersistChat])

	stats, err := e.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Redelivered)
	assert.Zero(t, stats.Abandoned)
}

func TestMemoryExecutorAbandonsAfterMaxAttempts(t *testing.T) {
	e := NewMemoryExecutor(16, 1, Policy{MaxAttempts: 3, Backoff: time.Millisecond}, zap.NewNop(), nil)
	h := &recorder{failures: 100}
	startMemory(t, e, h)

	require.NoError(t, e.EnqueuePersistChat(context.Background(), PersistChat{ApplicationID: 1, Number: 9}))

	assert.Eventually(t, func() bool {
		stats, _ := e.Stats(context.Background())
		return stats.Abandoned == 1
	}, time.Second, 5*time.Millisecond)

	_, _, calls := h.snapshot()
	assert.Equal(t, 3, calls[KindPersistChat])
}

func TestMemoryExecutorQueueFull(t *testing.T) {
	e := NewMemoryExecutor(1, 1, Policy{MaxAttempts: 1}, zap.NewNop(), nil)
	ctx := context.Background()

	require.NoError(t, e.EnqueuePersistChat(ctx, PersistChat{ApplicationID: 1, Number: 1}))
	err := e.EnqueuePersistChat(ctx, PersistChat{ApplicationID: 1, Number: 2})
	assert.ErrorIs(t, err, ErrQueueFull)

	require.NoError(t, e.Close())
	err = e.EnqueuePersistChat(ctx, PersistChat{ApplicationID: 1, Number: 3})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNATSExecutor(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e, err := ConnectNATS(ctx, url, NATSOptions{
		Workers: 2,
		AckWait: 5 * time.Second,
		Policy:  Policy{MaxAttempts: 3, Backoff: 10 * time.Millisecond},
	}, zap.NewNop(), nil)
	require.NoError(t, err)
	defer e.Close()

	h := &recorder{failures: 1}
	var started atomic.Bool
	go func() {
		started.Store(true)
		_ = e.Start(ctx, h)
	}()

	n := time.Now().UnixNano()
	require.NoError(t, e.EnqueuePersistChat(ctx, PersistChat{ApplicationID: n, Number: 1}))
	// Same allocation published twice is deduplicated by message id.
	require.NoError(t, e.EnqueuePersistChat(ctx, PersistChat{ApplicationID: n, Number: 1}))

	assert.Eventually(t, func() bool {
		chats, _, _ := h.snapshot()
		return started.Load() && chats == 1
	}, 5*time.Second, 20*time.Millisecond)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "nats", stats.Driver)
	assert.Equal(t, 3, stats.MaxAttempts)
}
