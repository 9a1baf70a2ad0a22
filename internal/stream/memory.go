package stream

import (
	"context"
	"sync"

	"github.com/lalith-99/chatlog/internal/models"
)

// MemoryBroker fans out within one process. Slow subscribers drop events
// rather than block the publisher.
type MemoryBroker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int64]map[int]*memorySubscription
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[int64]map[int]*memorySubscription)}
}

func (b *MemoryBroker) Publish(_ context.Context, msg models.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs[msg.ChatID] {
		select {
		case s.out <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, chatID int64) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &memorySubscription{
		broker: b,
		chatID: chatID,
		id:     b.nextID,
		out:    make(chan models.Message, 16),
	}
	if b.subs[chatID] == nil {
		b.subs[chatID] = make(map[int]*memorySubscription)
	}
	b.subs[chatID][s.id] = s

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

func (b *MemoryBroker) remove(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[s.chatID], s.id)
	if len(b.subs[s.chatID]) == 0 {
		delete(b.subs, s.chatID)
	}
	close(s.out)
}

type memorySubscription struct {
	broker *MemoryBroker
	chatID int64
	id     int
	out    chan models.Message
	once   sync.Once
}

func (s *memorySubscription) C() <-chan models.Message { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() { s.broker.remove(s) })
	return nil
}
