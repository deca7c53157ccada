package notification

import (
	"github.com/thelesson/lessonbill/internal/notification/domain"
	"github.com/thelesson/lessonbill/internal/notification/service"
	"github.com/thelesson/lessonbill/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(
		repository.ProvideStore[domain.Notification],
		service.NewLogPusher,
		service.NewService,
	),
)
