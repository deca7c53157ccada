package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/thelesson/lessonbill/internal/clock"
	"github.com/thelesson/lessonbill/internal/student/domain"
	"github.com/thelesson/lessonbill/internal/usercontext"
	"github.com/thelesson/lessonbill/pkg/db/option"
	"github.com/thelesson/lessonbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Node     *snowflake.Node
	Students repository.Repository[domain.Student]
}

type service struct {
	log      *zap.Logger
	clock    clock.Clock
	node     *snowflake.Node
	students repository.Repository[domain.Student]
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		log:      p.Log.Named("student.service"),
		clock:    p.Clock,
		node:     p.Node,
		students: p.Students,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateStudentRequest) (*domain.Student, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrNameRequired
	}

	userID, _ := usercontext.UserIDFromContext(ctx)
	now := s.clock.Now().UTC()
	row := &domain.Student{
		ID:        s.node.Generate(),
		UserID:    userID,
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.students.Create(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Student, error) {
	row, err := s.students.FindOne(ctx, &domain.Student{ID: id})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrStudentNotFound
	}
	if userID, ok := usercontext.UserIDFromContext(ctx); ok && row.UserID != userID {
		return nil, domain.ErrStudentNotFound
	}
	return row, nil
}

func (s *service) List(ctx context.Context) ([]*domain.Student, error) {
	userID, _ := usercontext.UserIDFromContext(ctx)
	return s.students.Find(ctx, &domain.Student{UserID: userID},
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", map[string]bool{"created_at": true})),
	)
}

func (s *service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateStudentRequest) (*domain.Student, error) {
	row, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{"updated_at": s.clock.Now().UTC()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrNameRequired
		}
		values["name"] = name
	}
	if req.Phone != nil {
		values["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.IsActive != nil {
		values["is_active"] = *req.IsActive
	}

	if err := s.students.Update(ctx, row.ID.String(), values); err != nil {
		return nil, err
	}
	return s.students.FindOne(ctx, &domain.Student{ID: row.ID})
}
