// Package reconcile recomputes the cached chats_count and messages_count
// fields from the persisted rows. Sweeps overwrite unconditionally, so
// running one twice is the same as running it once.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/counter"
	"github.com/lalith-99/chatlog/internal/observ"
	"github.com/lalith-99/chatlog/internal/repository"
)

const (
	SweepChatCounts    = "chat_counts"
	SweepMessageCounts = "message_counts"

	DefaultBatchSize = 1000
	DefaultLockTTL   = 5 * time.Minute
)

// Result summarises one sweep run.
type Result struct {
	Sweep    string        `json:"sweep"`
	Skipped  bool          `json:"skipped"`
	Updated  int           `json:"updated"`
	Raised   int           `json:"counters_raised"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
}

type Options struct {
	BatchSize int
	LockTTL   time.Duration
}

type Sweeper struct {
	apps     repository.ApplicationRepository
	chats    repository.ChatRepository
	messages repository.MessageRepository
	counters counter.Store
	locker   Locker
	opts     Options
	logger   *zap.Logger
	metrics  *observ.Metrics
}

func NewSweeper(
	apps repository.ApplicationRepository,
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	counters counter.Store,
	locker Locker,
	opts Options,
	logger *zap.Logger,
	metrics *observ.Metrics,
) *Sweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &Sweeper{
		apps:     apps,
		chats:    chats,
		messages: messages,
		counters: counters,
		locker:   locker,
		opts:     opts,
		logger:   logger.Named("reconcile"),
		metrics:  metrics,
	}
}

// exclusive runs fn under the sweep's lease, or reports a skipped run when
// another holder has it.
func (s *Sweeper) exclusive(ctx context.Context, sweep string, fn func(*Result) error) (Result, error) {
	res := Result{Sweep: sweep}
	start := time.Now()

	lease, ok, err := s.locker.Acquire(ctx, sweep, s.opts.LockTTL)
	if err != nil {
		return res, err
	}
	if !ok {
		res.Skipped = true
		s.metrics.SweepSkipped(sweep)
		s.logger.Info("sweep already running elsewhere, skipping", zap.String("sweep", sweep))
		return res, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release sweep lock", zap.String("sweep", sweep), zap.Error(err))
		}
	}()

	err = fn(&res)
	res.Duration = time.Since(start)
	s.metrics.SweepFinished(sweep, res.Updated, res.Duration)
	s.logger.Info("sweep finished",
		zap.String("sweep", sweep),
		zap.Int("updated", res.Updated),
		zap.Int("counters_raised", res.Raised),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration),
	)
	if err == nil && res.Failed > 0 {
		err = fmt.Errorf("%s: %d scopes failed", sweep, res.Failed)
	}
	return res, err
}

// ReconcileChatCounts sets every application's chats_count to its number
// of persisted chats and raises its chat counter to at least the highest
// persisted chat number.
func (s *Sweeper) ReconcileChatCounts(ctx context.Context) (Result, error) {
	return s.exclusive(ctx, SweepChatCounts, func(res *Result) error {
		var afterID int64
		for {
			apps, err := s.apps.ListAfter(ctx, afterID, s.opts.BatchSize)
			if err != nil {
				return fmt.Errorf("list applications: %w", err)
			}
			for _, app := range apps {
				afterID = app.ID
				stats, err := s.chats.StatsByApplication(ctx, app.ID)
				if err != nil {
					res.Failed++
					s.logger.Error("count chats failed", zap.String("token", app.Token), zap.Error(err))
					continue
				}
				if err := s.apps.SetChatsCount(ctx, app.ID, stats.Count); err != nil {
					res.Failed++
					s.logger.Error("update chats_count failed", zap.String("token", app.Token), zap.Error(err))
					continue
				}
				res.Updated++
				s.logger.Debug("chats_count updated", zap.String("token", app.Token), zap.Int64("chats_count", stats.Count))

				if s.raise(ctx, counter.ChatsKey(app.Token), stats.MaxNumber) {
					res.Raised++
				}
			}
			if len(apps) < s.opts.BatchSize {
				return ctx.Err()
			}
		}
	})
}

// ReconcileMessageCounts does the same per chat for messages_count.
func (s *Sweeper) ReconcileMessageCounts(ctx context.Context) (Result, error) {
	return s.exclusive(ctx, SweepMessageCounts, func(res *Result) error {
		var afterID int64
		for {
			refs, err := s.chats.ListRefsAfter(ctx, afterID, s.opts.BatchSize)
			if err != nil {
				return fmt.Errorf("list chats: %w", err)
			}
			for _, ref := range refs {
				afterID = ref.ID
				stats, err := s.messages.StatsByChat(ctx, ref.ID)
				if err != nil {
					res.Failed++
					s.logger.Error("count messages failed", zap.Int64("chat_id", ref.ID), zap.Error(err))
					continue
				}
				if err := s.chats.SetMessagesCount(ctx, ref.ID, stats.Count); err != nil {
					res.Failed++
					s.logger.Error("update messages_count failed", zap.Int64("chat_id", ref.ID), zap.Error(err))
					continue
				}
				res.Updated++
				s.logger.Debug("messages_count updated", zap.Int64("chat_id", ref.ID), zap.Int64("messages_count", stats.Count))

				if s.raise(ctx, counter.MessagesKey(ref.ApplicationToken, ref.Number), stats.MaxNumber) {
					res.Raised++
				}
			}
			if len(refs) < s.opts.BatchSize {
				return ctx.Err()
			}
		}
	})
}

// raise lifts a counter that fell below a persisted number, which only
// happens when the counter store lost data. Failures are logged; the next
// sweep tries again.
func (s *Sweeper) raise(ctx context.Context, key string, floor int64) bool {
	if floor <= 0 {
		return false
	}
	changed, err := s.counters.RaiseTo(ctx, key, floor)
	if err != nil {
		s.logger.Error("counter floor repair failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if changed {
		s.logger.Warn("counter was behind persisted rows, raised", zap.String("key", key), zap.Int64("floor", floor))
	}
	return changed
}

// RunAll runs both sweeps one after the other.
func (s *Sweeper) RunAll(ctx context.Context) ([]Result, error) {
	chats, err := s.ReconcileChatCounts(ctx)
	if err != nil {
		return []Result{chats}, err
	}
	messages, err := s.ReconcileMessageCounts(ctx)
	return []Result{chats, messages}, err
}

// Run sweeps once immediately and then every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info("scheduler started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunAll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
