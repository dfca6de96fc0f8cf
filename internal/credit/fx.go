package credit

import (
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
