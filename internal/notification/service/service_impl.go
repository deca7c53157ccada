package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/thelesson/lessonbill/internal/clock"
	"github.com/thelesson/lessonbill/internal/notification/domain"
	"github.com/thelesson/lessonbill/pkg/db/option"
	"github.com/thelesson/lessonbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type ServiceParam struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Node   *snowflake.Node
	Repo   repository.Repository[domain.Notification]
	Pusher domain.Pusher
}

type service struct {
	log    *zap.Logger
	clock  clock.Clock
	node   *snowflake.Node
	repo   repository.Repository[domain.Notification]
	pusher domain.Pusher
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		log:    p.Log.Named("notification.service"),
		clock:  p.Clock,
		node:   p.Node,
		repo:   p.Repo,
		pusher: p.Pusher,
	}
}

func (s *service) Notify(ctx context.Context, userID snowflake.ID, ev domain.Event) error {
	row := &domain.Notification{
		ID:        s.node.Generate(),
		UserID:    userID,
		Type:      ev.Type,
		Title:     ev.Title,
		Body:      ev.Body,
		Metadata:  datatypes.JSONMap(ev.Metadata),
		CreatedAt: s.clock.Now().UTC(),
	}
	if row.Metadata == nil {
		row.Metadata = datatypes.JSONMap{}
	}

	if err := s.repo.Create(ctx, row); err != nil {
		return err
	}

	if err := s.pusher.Push(ctx, userID, ev); err != nil {
		// Stored but undelivered; delivery transports retry on their own.
		s.log.Warn("push failed",
			zap.String("type", string(ev.Type)),
			zap.Int64("user_id", int64(userID)),
			zap.Error(err),
		)
	}
	return nil
}

func (s *service) List(ctx context.Context, userID snowflake.ID, limit int) ([]*domain.Notification, error) {
	return s.repo.Find(ctx, &domain.Notification{UserID: userID},
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
		option.Limit(limit),
	)
}

// LogPusher writes events to the application log. It stands in for real
// push/SMS transports.
type LogPusher struct {
	Log *zap.Logger
}

func (p LogPusher) Push(_ context.Context, userID snowflake.ID, ev domain.Event) error {
	p.Log.Info("notification",
		zap.Int64("user_id", int64(userID)),
		zap.String("type", string(ev.Type)),
		zap.String("title", ev.Title),
	)
	return nil
}

func NewLogPusher(log *zap.Logger) domain.Pusher {
	return LogPusher{Log: log.Named("notification.pusher")}
}
