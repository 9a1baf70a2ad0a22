package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/apperr"
	"github.com/lalith-99/chatlog/internal/counter"
	"github.com/lalith-99/chatlog/internal/models"
)

const msgNameBlank = "Name can't be blank"

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Service) CreateApplication(ctx context.Context, name string) (*models.Application, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation(msgNameBlank)
	}
	app, err := s.apps.Create(ctx, newToken(), name)
	if err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}
	s.tenants.Set(app.Token, app.ID)
	s.logger.Info("application created", zap.String("token", app.Token))
	return app, nil
}

func (s *Service) GetApplication(ctx context.Context, token string) (*models.Application, error) {
	return s.application(ctx, token)
}

func (s *Service) UpdateApplication(ctx context.Context, token, name string) (*models.Application, error) {
	if _, err := s.applicationID(ctx, token); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation(msgNameBlank)
	}
	app, err := s.apps.UpdateName(ctx, token, name)
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	if app == nil {
		return nil, apperr.NotFound("Application")
	}
	return app, nil
}

// DeleteApplication removes the tenant with its chats and messages, then
// drops its counters and index documents. Tasks already queued for it fail
// with a constraint violation and are abandoned.
func (s *Service) DeleteApplication(ctx context.Context, token string) error {
	app, err := s.application(ctx, token)
	if err != nil {
		return err
	}

	chatIDs, err := s.chats.IDsByApplication(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("list chats for delete: %w", err)
	}

	deleted, err := s.apps.Delete(ctx, token)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	s.tenants.Invalidate(token)
	if !deleted {
		return apperr.NotFound("Application")
	}

	if err := s.counters.DeletePrefix(ctx, counter.ApplicationPrefix(token)); err != nil {
		s.logger.Error("failed to drop application counters", zap.String("token", token), zap.Error(err))
	}
	if s.index != nil && len(chatIDs) > 0 {
		if err := s.index.DeleteChats(ctx, chatIDs); err != nil {
			s.metrics.IndexFailed()
			s.logger.Error("failed to drop application index documents", zap.String("token", token), zap.Error(err))
		}
	}

	s.logger.Info("application deleted", zap.String("token", token), zap.Int("chats", len(chatIDs)))
	return nil
}
