package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCommissionPolicyHolder),
	fx.Provide(func(h *CommissionPolicyHolder) PolicySource { return h }),
)
