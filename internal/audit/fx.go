package audit

import (
	"github.com/pawtraits-dev/pawtraits-sub014/internal/audit/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
