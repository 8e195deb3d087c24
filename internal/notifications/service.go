package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/pagination"
)

// Service persists notifications and pushes them to live subscribers.
type Service interface {
	WithTx(tx *gorm.DB) Service
	NotifyStaff(ctx context.Context, input NotifyInput) (*models.Notification, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params, unreadOnly bool) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Hub() *Hub
}

// NotifyInput describes one notification to store and broadcast.
type NotifyInput struct {
	UserID  *uuid.UUID
	OrderID *uuid.UUID
	Title   string
	Message string
	Link    *string
}

type serviceImpl struct {
	repo Repository
	hub  *Hub
	logg *logger.Logger
}

// NewService wires the notifications service with its dependencies.
func NewService(repo Repository, hub *Hub, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("notifications repository is required")
	}
	if hub == nil {
		return nil, errors.New("notifications hub is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &serviceImpl{repo: repo, hub: hub, logg: logg}, nil
}

func (s *serviceImpl) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &serviceImpl{repo: s.repo.WithTx(tx), hub: s.hub, logg: s.logg}
}

// NotifyStaff stores the notification and publishes it to the hub. A nil
// UserID addresses the whole back office.
func (s *serviceImpl) NotifyStaff(ctx context.Context, input NotifyInput) (*models.Notification, error) {
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification title is required")
	}

	notification := &models.Notification{
		ID:      uuid.New(),
		UserID:  input.UserID,
		OrderID: input.OrderID,
		Title:   input.Title,
		Message: input.Message,
		Link:    input.Link,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating notification")
	}

	s.hub.Publish(ctx, Event{
		NotificationID: notification.ID,
		OrderID:        notification.OrderID,
		Title:          notification.Title,
		Message:        notification.Message,
	})
	return notification, nil
}

func (s *serviceImpl) List(ctx context.Context, userID uuid.UUID, params pagination.Params, unreadOnly bool) ([]models.Notification, *pagination.Cursor, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return s.repo.List(ctx, ListParams{
		UserID:     userID,
		Limit:      params.Limit,
		Cursor:     cursor,
		UnreadOnly: unreadOnly,
	})
}

func (s *serviceImpl) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	mark, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking notification read")
	}
	if !mark.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *serviceImpl) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
}

func (s *serviceImpl) Hub() *Hub {
	return s.hub
}
