package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lalith-99/chatlog/internal/apperr"
	"github.com/lalith-99/chatlog/internal/models"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100

	msgQueryRequired = "Search query parameter 'q' is required"
)

// PageRequest is a 1-based page of PerPage items.
type PageRequest struct {
	Page    int
	PerPage int
}

// Normalize clamps out-of-range values; zero values take the defaults.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Pagination describes where a page sits. NextPage and PrevPage are nil
// at the ends.
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPages  int   `json:"total_pages"`
	TotalChats  int64 `json:"total_chats"`
	NextPage    *int  `json:"next_page"`
	PrevPage    *int  `json:"prev_page"`
}

func paginate(p PageRequest, total int64) Pagination {
	pages := int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	out := Pagination{
		CurrentPage: p.Page,
		PerPage:     p.PerPage,
		TotalPages:  pages,
		TotalChats:  total,
	}
	if p.Page < pages {
		next := p.Page + 1
		out.NextPage = &next
	}
	if p.Page > 1 {
		prev := p.Page - 1
		out.PrevPage = &prev
	}
	return out
}

type ChatPage struct {
	Chats      []models.Chat `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

func (s *Service) GetChat(ctx context.Context, token string, chatNumber int64) (*models.Chat, error) {
	return s.chat(ctx, token, chatNumber)
}

// ListChats pages through persisted chats by number. Chats whose number is
// allocated but not yet persisted are not listed.
func (s *Service) ListChats(ctx context.Context, token string, page PageRequest) (*ChatPage, error) {
	appID, err := s.applicationID(ctx, token)
	if err != nil {
		return nil, err
	}
	page = page.Normalize()

	stats, err := s.chats.StatsByApplication(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("count chats: %w", err)
	}
	chats, err := s.chats.ListByApplication(ctx, appID, page.PerPage, (page.Page-1)*page.PerPage)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return &ChatPage{Chats: chats, Pagination: paginate(page, stats.Count)}, nil
}

func (s *Service) GetMessage(ctx context.Context, token string, chatNumber, messageNumber int64) (*models.Message, error) {
	chat, err := s.chat(ctx, token, chatNumber)
	if err != nil {
		return nil, err
	}
	msg, err := s.messages.GetByNumber(ctx, chat.ID, messageNumber)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("Message")
	}
	return msg, nil
}

func (s *Service) ListMessages(ctx context.Context, token string, chatNumber int64) ([]models.Message, error) {
	chat, err := s.chat(ctx, token, chatNumber)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByChat(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ChatID resolves the internal id of a chat, for subscribers of its event
// stream.
func (s *Service) ChatID(ctx context.Context, token string, chatNumber int64) (int64, error) {
	chat, err := s.chat(ctx, token, chatNumber)
	if err != nil {
		return 0, err
	}
	return chat.ID, nil
}

// SearchMessages runs q against the index within one chat and loads the
// matching rows in relevance order. Hits whose row no longer exists are
// dropped.
func (s *Service) SearchMessages(ctx context.Context, token string, chatNumber int64, q string) ([]models.Message, error) {
	chat, err := s.chat(ctx, token, chatNumber)
	if err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.InvalidArgument(msgQueryRequired)
	}

	hits, err := s.index.Search(ctx, chat.ID, q, s.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	if len(hits) == 0 {
		return []models.Message{}, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.MessageID
	}
	rows, err := s.messages.GetByIDs(ctx, chat.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("load search hits: %w", err)
	}

	byID := make(map[int64]models.Message, len(rows))
	for _, m := range rows {
		byID[m.ID] = m
	}
	out := make([]models.Message, 0, len(hits))
	for _, h := range hits {
		if m, ok := byID[h.MessageID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
