package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrStudentNotFound = errors.New("student_not_found")
	ErrNameRequired    = errors.New("student_name_required")
)

type CreateStudentRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone"`
}

type UpdateStudentRequest struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	IsActive *bool   `json:"is_active"`
}

type Service interface {
	Create(ctx context.Context, req CreateStudentRequest) (*Student, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Student, error)
	List(ctx context.Context) ([]*Student, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateStudentRequest) (*Student, error)
}
