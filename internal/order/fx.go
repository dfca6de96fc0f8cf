package order

import (
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
