package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// MemoryIndex scores documents by how many query terms they contain. It is
// for tests and single-process runs.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[int64]Document
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[int64]Document)}
}

func (m *MemoryIndex) EnsureSchema(context.Context) error { return nil }

func (m *MemoryIndex) Upsert(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.MessageID] = doc
	return nil
}

func terms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func (m *MemoryIndex) Search(_ context.Context, chatID int64, q string, limit int) ([]Hit, error) {
	want := terms(q)

	m.mu.RLock()
	hits := make([]Hit, 0)
	for _, doc := range m.docs {
		if doc.ChatID != chatID {
			continue
		}
		have := make(map[string]int)
		for _, t := range terms(doc.Body) {
			have[t]++
		}
		var score float64
		for _, t := range want {
			score += float64(have[t])
		}
		if score > 0 {
			hits = append(hits, Hit{MessageID: doc.MessageID, Number: doc.Number, Score: score})
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Number < hits[j].Number
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) DeleteChats(_ context.Context, chatIDs []int64) error {
	drop := make(map[int64]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		drop[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, doc := range m.docs {
		if _, ok := drop[doc.ChatID]; ok {
			delete(m.docs, id)
		}
	}
	return nil
}

// Len reports how many documents are indexed.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
