package invoice

import (
	"github.com/thelesson/lessonbill/internal/invoice/domain"
	"github.com/thelesson/lessonbill/internal/invoice/service"
	"github.com/thelesson/lessonbill/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(
		repository.ProvideStore[domain.Invoice],
		service.NewService,
	),
)
