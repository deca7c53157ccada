package student

import (
	"github.com/thelesson/lessonbill/internal/student/domain"
	"github.com/thelesson/lessonbill/internal/student/service"
	"github.com/thelesson/lessonbill/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("student",
	fx.Provide(
		repository.ProvideStore[domain.Student],
		service.NewService,
	),
)
