package attendance

import (
	"github.com/thelesson/lessonbill/internal/attendance/domain"
	"github.com/thelesson/lessonbill/internal/attendance/service"
	"github.com/thelesson/lessonbill/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("attendance",
	fx.Provide(
		repository.ProvideStore[domain.AttendanceLog],
		service.NewService,
	),
)
