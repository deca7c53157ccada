package contract

import (
	"github.com/thelesson/lessonbill/internal/contract/domain"
	"github.com/thelesson/lessonbill/internal/contract/service"
	"github.com/thelesson/lessonbill/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("contract.service",
	fx.Provide(
		repository.ProvideStore[domain.Contract],
		service.NewService,
	),
)
