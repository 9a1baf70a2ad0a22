// Package service implements the numbering and persistence protocol: the
// request path allocates a number from the counter store and queues a
// persistence task; workers insert the row, index it and announce it.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/apperr"
	"github.com/lalith-99/chatlog/internal/cache"
	"github.com/lalith-99/chatlog/internal/counter"
	"github.com/lalith-99/chatlog/internal/models"
	"github.com/lalith-99/chatlog/internal/observ"
	"github.com/lalith-99/chatlog/internal/repository"
	"github.com/lalith-99/chatlog/internal/search"
	"github.com/lalith-99/chatlog/internal/stream"
	"github.com/lalith-99/chatlog/internal/tasks"
)

const DefaultSearchLimit = 10

// Deps are the collaborators of a Service. Events, Tenants and Metrics
// are optional.
type Deps struct {
	Applications repository.ApplicationRepository
	Chats        repository.ChatRepository
	Messages     repository.MessageRepository
	Counters     counter.Store
	Tasks        tasks.Enqueuer
	Index        search.Index
	Events       stream.Broker
	Tenants      *cache.Tenants
	Metrics      *observ.Metrics
	Logger       *zap.Logger
	SearchLimit  int
}

type Service struct {
	apps     repository.ApplicationRepository
	chats    repository.ChatRepository
	messages repository.MessageRepository
	counters counter.Store
	tasks    tasks.Enqueuer
	index    search.Index
	events   stream.Broker
	tenants  *cache.Tenants
	metrics  *observ.Metrics
	logger   *zap.Logger

	searchLimit int
}

var _ tasks.Handler = (*Service)(nil)

func New(d Deps) *Service {
	limit := d.SearchLimit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		apps:        d.Applications,
		chats:       d.Chats,
		messages:    d.Messages,
		counters:    d.Counters,
		tasks:       d.Tasks,
		index:       d.Index,
		events:      d.Events,
		tenants:     d.Tenants,
		metrics:     d.Metrics,
		logger:      logger.Named("service"),
		searchLimit: limit,
	}
}

// applicationID resolves a token, preferring the tenant cache. Tokens never
// change, so a cached id can only be stale by pointing at a deleted tenant.
func (s *Service) applicationID(ctx context.Context, token string) (int64, error) {
	if id, ok := s.tenants.Get(token); ok {
		return id, nil
	}
	app, err := s.application(ctx, token)
	if err != nil {
		return 0, err
	}
	return app.ID, nil
}

func (s *Service) application(ctx context.Context, token string) (*models.Application, error) {
	app, err := s.apps.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve application: %w", err)
	}
	if app == nil {
		return nil, apperr.NotFound("Application")
	}
	s.tenants.Set(app.Token, app.ID)
	return app, nil
}

// chat resolves the application first so an unknown tenant is reported
// before an unknown chat.
func (s *Service) chat(ctx context.Context, token string, chatNumber int64) (*models.Chat, error) {
	appID, err := s.applicationID(ctx, token)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.GetByNumber(ctx, appID, chatNumber)
	if err != nil {
		return nil, fmt.Errorf("resolve chat: %w", err)
	}
	if chat == nil {
		return nil, apperr.NotFound("Chat")
	}
	return chat, nil
}
