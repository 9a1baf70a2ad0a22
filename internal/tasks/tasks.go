// Package tasks carries the asynchronous persistence work items from the
// request path to the workers: typed payloads, a retry policy and the two
// executors (NATS JetStream and in-process).
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/observ"
)

type Kind string

const (
	KindPersistChat    Kind = "persist_chat"
	KindPersistMessage Kind = "persist_message"
)

// PersistChat asks a worker to insert chat Number under ApplicationID.
type PersistChat struct {
	ApplicationID int64 `json:"application_id"`
	Number        int64 `json:"number"`
}

// PersistMessage asks a worker to insert message Number under ChatID.
type PersistMessage struct {
	ChatID int64  `json:"chat_id"`
	Number int64  `json:"number"`
	Body   string `json:"body"`
}

// Enqueuer hands tasks to the executor without waiting for them to run.
// A nil error means the task is durably queued (or, for the in-process
// executor, buffered).
type Enqueuer interface {
	EnqueuePersistChat(ctx context.Context, t PersistChat) error
	EnqueuePersistMessage(ctx context.Context, t PersistMessage) error
}

// Handler executes tasks. Any returned error schedules a retry until the
// policy's attempts are used up.
type Handler interface {
	PersistChat(ctx context.Context, t PersistChat) error
	PersistMessage(ctx context.Context, t PersistMessage) error
}

// Stats is the executor's introspection snapshot for the admin endpoint.
type Stats struct {
	Driver      string `json:"driver"`
	Workers     int    `json:"workers"`
	Pending     uint64 `json:"pending"`
	InFlight    uint64 `json:"in_flight"`
	Redelivered uint64 `json:"redelivered"`
	Abandoned   uint64 `json:"abandoned"`
	MaxAttempts int    `json:"max_attempts"`
}

// Executor is an at-least-once task runner with a bounded retry budget.
type Executor interface {
	Enqueuer

	// Start consumes tasks with h until ctx is cancelled.
	Start(ctx context.Context, h Handler) error

	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Policy bounds retries. Attempt numbers start at 1.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// Delay is the wait before the attempt after attempt: Backoff doubled per
// failed attempt, capped at MaxBackoff.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Exhausted reports whether attempt was the last one allowed.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

func encode(kind Kind, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return data, nil
}

// dispatch decodes data according to kind and runs the matching handler.
func dispatch(ctx context.Context, h Handler, kind Kind, data []byte) error {
	switch kind {
	case KindPersistChat:
		var t PersistChat
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("decode %s: %w", kind, err)
		}
		return h.PersistChat(ctx, t)
	case KindPersistMessage:
		var t PersistMessage
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("decode %s: %w", kind, err)
		}
		return h.PersistMessage(ctx, t)
	default:
		return fmt.Errorf("unknown task kind %q", kind)
	}
}

// outcome records one attempt and, when the budget is spent, logs the
// permanently lost number. The caller still decides how to drop the task.
func outcome(logger *zap.Logger, metrics *observ.Metrics, p Policy, kind Kind, data []byte, attempt int, err error) (retry bool) {
	if err == nil {
		metrics.TaskProcessed(string(kind), "ok")
		return false
	}
	if p.Exhausted(attempt) {
		metrics.TaskProcessed(string(kind), "abandoned")
		metrics.TaskAbandoned(string(kind))
		logger.Error("persistence task abandoned, allocated number is orphaned",
			zap.String("kind", string(kind)),
			zap.ByteString("payload", redact(kind, data)),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return false
	}
	metrics.TaskProcessed(string(kind), "retry")
	logger.Warn("persistence task failed, will retry",
		zap.String("kind", string(kind)),
		zap.Int("attempt", attempt),
		zap.Duration("backoff", p.Delay(attempt)),
		zap.Error(err),
	)
	return true
}

// redact keeps message bodies out of the logs.
func redact(kind Kind, data []byte) []byte {
	if kind != KindPersistMessage {
		return data
	}
	var t PersistMessage
	if err := json.Unmarshal(data, &t); err != nil {
		return data
	}
	t.Body = fmt.Sprintf("<%d bytes>", len(t.Body))
	out, err := json.Marshal(t)
	if err != nil {
		return data
	}
	return out
}
