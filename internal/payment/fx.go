package payment

import (
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/adapters"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(adapters.FromConfig),
	fx.Provide(webhook.NewService),
)
