// Package memory implements the repository interfaces in process memory,
// with the same uniqueness, foreign-key and cascade behaviour as the
// Postgres schema. It backs the service, sweep and API tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lalith-99/chatlog/internal/apperr"
	"github.com/lalith-99/chatlog/internal/models"
)

type Store struct {
	mu       sync.Mutex
	nextID   int64
	apps     map[int64]models.Application
	chats    map[int64]models.Chat
	messages map[int64]models.Message
	now      func() time.Time
}

func New() *Store {
	return &Store{
		apps:     make(map[int64]models.Application),
		chats:    make(map[int64]models.Chat),
		messages: make(map[int64]models.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Applications() *ApplicationStore { return &ApplicationStore{s: s} }
func (s *Store) Chats() *ChatStore               { return &ChatStore{s: s} }
func (s *Store) Messages() *MessageStore         { return &MessageStore{s: s} }

// Counts reports how many rows of each kind exist.
func (s *Store) Counts() (apps, chats, messages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.apps), len(s.chats), len(s.messages)
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func constraint(op, name string) error {
	return fmt.Errorf("%s: %w: %s", op, apperr.ErrConstraintViolation, name)
}

type ApplicationStore struct{ s *Store }

func (r *ApplicationStore) Create(_ context.Context, token, name string) (*models.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, a := range r.s.apps {
		if a.Token == token {
			return nil, constraint("insert application", "idx_applications_token")
		}
	}
	now := r.s.now()
	a := models.Application{ID: r.s.id(), Token: token, Name: name, CreatedAt: now, UpdatedAt: now}
	r.s.apps[a.ID] = a
	return &a, nil
}

func (r *ApplicationStore) GetByToken(_ context.Context, token string) (*models.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, a := range r.s.apps {
		if a.Token == token {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *ApplicationStore) UpdateName(_ context.Context, token, name string) (*models.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, a := range r.s.apps {
		if a.Token == token {
			a.Name = name
			a.UpdatedAt = r.s.now()
			r.s.apps[id] = a
			return &a, nil
		}
	}
	return nil, nil
}

func (r *ApplicationStore) Delete(_ context.Context, token string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, a := range r.s.apps {
		if a.Token != token {
			continue
		}
		delete(r.s.apps, id)
		for chatID, ch := range r.s.chats {
			if ch.ApplicationID != id {
				continue
			}
			delete(r.s.chats, chatID)
			for msgID, m := range r.s.messages {
				if m.ChatID == chatID {
					delete(r.s.messages, msgID)
				}
			}
		}
		return true, nil
	}
	return false, nil
}

func (r *ApplicationStore) ListAfter(_ context.Context, afterID int64, limit int) ([]models.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]models.Application, 0)
	for _, a := range r.s.apps {
		if a.ID > afterID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ApplicationStore) SetChatsCount(_ context.Context, applicationID, count int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if a, ok := r.s.apps[applicationID]; ok {
		a.ChatsCount = count
		r.s.apps[applicationID] = a
	}
	return nil
}

type ChatStore struct{ s *Store }

func (r *ChatStore) Create(_ context.Context, applicationID, number int64) (*models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.apps[applicationID]; !ok {
		return nil, constraint("insert chat", "chats_application_id_fkey")
	}
	for _, ch := range r.s.chats {
		if ch.ApplicationID == applicationID && ch.Number == number {
			return nil, constraint("insert chat", "idx_chats_application_number")
		}
	}
	now := r.s.now()
	ch := models.Chat{ID: r.s.id(), ApplicationID: applicationID, Number: number, CreatedAt: now, UpdatedAt: now}
	r.s.chats[ch.ID] = ch
	return &ch, nil
}

func (r *ChatStore) GetByNumber(_ context.Context, applicationID, number int64) (*models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, ch := range r.s.chats {
		if ch.ApplicationID == applicationID && ch.Number == number {
			return &ch, nil
		}
	}
	return nil, nil
}

func (r *ChatStore) byApplication(applicationID int64) []models.Chat {
	out := make([]models.Chat, 0)
	for _, ch := range r.s.chats {
		if ch.ApplicationID == applicationID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (r *ChatStore) ListByApplication(_ context.Context, applicationID int64, limit, offset int) ([]models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := r.byApplication(applicationID)
	if offset >= len(all) {
		return make([]models.Chat, 0), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (r *ChatStore) StatsByApplication(_ context.Context, applicationID int64) (models.ScopeStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var st models.ScopeStats
	for _, ch := range r.byApplication(applicationID) {
		st.Count++
		st.MaxNumber = max(st.MaxNumber, ch.Number)
	}
	return st, nil
}

func (r *ChatStore) IDsByApplication(_ context.Context, applicationID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := make([]int64, 0)
	for _, ch := range r.byApplication(applicationID) {
		ids = append(ids, ch.ID)
	}
	return ids, nil
}

func (r *ChatStore) ListRefsAfter(_ context.Context, afterID int64, limit int) ([]models.ChatRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	refs := make([]models.ChatRef, 0)
	for _, ch := range r.s.chats {
		if ch.ID > afterID {
			refs = append(refs, models.ChatRef{
				ID:               ch.ID,
				Number:           ch.Number,
				ApplicationToken: r.s.apps[ch.ApplicationID].Token,
			})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (r *ChatStore) SetMessagesCount(_ context.Context, chatID, count int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if ch, ok := r.s.chats[chatID]; ok {
		ch.MessagesCount = count
		r.s.chats[chatID] = ch
	}
	return nil
}

type MessageStore struct{ s *Store }

func (r *MessageStore) Create(_ context.Context, chatID, number int64, body string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.chats[chatID]; !ok {
		return nil, constraint("insert message", "messages_chat_id_fkey")
	}
	for _, m := range r.s.messages {
		if m.ChatID == chatID && m.Number == number {
			return nil, constraint("insert message", "idx_messages_chat_number")
		}
	}
	now := r.s.now()
	m := models.Message{ID: r.s.id(), ChatID: chatID, Number: number, Body: body, CreatedAt: now, UpdatedAt: now}
	r.s.messages[m.ID] = m
	return &m, nil
}

func (r *MessageStore) GetByNumber(_ context.Context, chatID, number int64) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.messages {
		if m.ChatID == chatID && m.Number == number {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *MessageStore) ListByChat(_ context.Context, chatID int64) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]models.Message, 0)
	for _, m := range r.s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *MessageStore) GetByIDs(_ context.Context, chatID int64, ids []int64) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.s.messages[id]; ok && m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MessageStore) StatsByChat(_ context.Context, chatID int64) (models.ScopeStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var st models.ScopeStats
	for _, m := range r.s.messages {
		if m.ChatID == chatID {
			st.Count++
			st.MaxNumber = max(st.MaxNumber, m.Number)
		}
	}
	return st, nil
}
