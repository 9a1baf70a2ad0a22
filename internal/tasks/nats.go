package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/observ"
)

const (
	streamName    = "CHATLOG_TASKS"
	consumerName  = "persisters"
	subjectPrefix = "chatlog.tasks."
)

func subject(kind Kind) string { return subjectPrefix + string(kind) }

// NATSOptions configures the JetStream executor.
type NATSOptions struct {
	Workers int
	AckWait time.Duration
	Policy  Policy
}

// NATSExecutor queues tasks on a JetStream work-queue stream and consumes
// them through one durable, explicitly acked consumer. Redelivery after a
// Nak, a missed ack or a crash gives at-least-once execution; MaxDeliver
// bounds it.
type NATSExecutor struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	opts    NATSOptions
	logger  *zap.Logger
	metrics *observ.Metrics

	abandoned atomic.Uint64
}

// ConnectNATS connects and makes sure the task stream exists.
func ConnectNATS(ctx context.Context, url string, opts NATSOptions, logger *zap.Logger, metrics *observ.Metrics) (*NATSExecutor, error) {
	nc, err := nats.Connect(url,
		nats.Name("chatlog"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subjectPrefix + ">"},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	logger.Info("nats connected", zap.String("url", url), zap.String("stream", streamName))
	return &NATSExecutor{
		nc:      nc,
		js:      js,
		opts:    opts,
		logger:  logger.Named("tasks"),
		metrics: metrics,
	}, nil
}

func (e *NATSExecutor) publish(ctx context.Context, kind Kind, msgID string, v any) error {
	data, err := encode(kind, v)
	if err != nil {
		return err
	}
	// The message id lets JetStream drop a duplicate publish of the same
	// allocation inside the dedupe window.
	if _, err := e.js.Publish(ctx, subject(kind), data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("nats publish %s: %w", kind, err)
	}
	return nil
}

func (e *NATSExecutor) EnqueuePersistChat(ctx context.Context, t PersistChat) error {
	return e.publish(ctx, KindPersistChat, fmt.Sprintf("chat:%d:%d", t.ApplicationID, t.Number), t)
}

func (e *NATSExecutor) EnqueuePersistMessage(ctx context.Context, t PersistMessage) error {
	return e.publish(ctx, KindPersistMessage, fmt.Sprintf("message:%d:%d", t.ChatID, t.Number), t)
}

func (e *NATSExecutor) consumer(ctx context.Context) (jetstream.Consumer, error) {
	return e.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: subjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       e.opts.AckWait,
		MaxDeliver:    e.opts.Policy.MaxAttempts,
		MaxAckPending: e.opts.Workers * 4,
	})
}

// Start attaches opts.Workers pull subscriptions to the durable consumer
// and blocks until ctx is cancelled.
func (e *NATSExecutor) Start(ctx context.Context, h Handler) error {
	cons, err := e.consumer(ctx)
	if err != nil {
		return fmt.Errorf("nats consumer create: %w", err)
	}

	stops := make([]jetstream.ConsumeContext, 0, e.opts.Workers)
	defer func() {
		for _, cc := range stops {
			cc.Stop()
		}
	}()

	for i := 0; i < e.opts.Workers; i++ {
		cc, err := cons.Consume(func(msg jetstream.Msg) {
			e.handle(ctx, h, msg)
		})
		if err != nil {
			return fmt.Errorf("nats consume: %w", err)
		}
		stops = append(stops, cc)
	}

	e.logger.Info("task workers started", zap.Int("workers", e.opts.Workers))
	<-ctx.Done()
	return nil
}

func (e *NATSExecutor) handle(ctx context.Context, h Handler, msg jetstream.Msg) {
	kind := Kind(strings.TrimPrefix(msg.Subject(), subjectPrefix))

	attempt := 1
	if md, err := msg.Metadata(); err == nil {
		attempt = int(md.NumDelivered)
	}

	taskCtx, cancel := context.WithTimeout(ctx, e.opts.AckWait)
	err := dispatch(taskCtx, h, kind, msg.Data())
	cancel()

	if !outcome(e.logger, e.metrics, e.opts.Policy, kind, msg.Data(), attempt, err) {
		if err != nil {
			e.abandoned.Add(1)
			if termErr := msg.Term(); termErr != nil {
				e.logger.Error("nats term failed", zap.Error(termErr))
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			e.logger.Error("nats ack failed", zap.Error(ackErr))
		}
		return
	}

	if nakErr := msg.NakWithDelay(e.opts.Policy.Delay(attempt)); nakErr != nil {
		e.logger.Error("nats nak failed", zap.Error(nakErr))
	}
}

func (e *NATSExecutor) Stats(ctx context.Context) (Stats, error) {
	cons, err := e.js.Consumer(ctx, streamName, consumerName)
	if err != nil {
		return Stats{}, fmt.Errorf("nats consumer lookup: %w", err)
	}
	info, err := cons.Info(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("nats consumer info: %w", err)
	}
	return Stats{
		Driver:      "nats",
		Workers:     e.opts.Workers,
		Pending:     info.NumPending,
		InFlight:    uint64(max(info.NumAckPending, 0)),
		Redelivered: uint64(max(info.NumRedelivered, 0)),
		Abandoned:   e.abandoned.Load(),
		MaxAttempts: e.opts.Policy.MaxAttempts,
	}, nil
}

func (e *NATSExecutor) Close() error {
	if err := e.nc.Drain(); err != nil {
		e.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
