package attribution

import (
	"github.com/pawtraits-dev/pawtraits-sub014/internal/commission/rate"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/graph"
	"go.uber.org/fx"
)

var Module = fx.Module("attribution.service",
	fx.Provide(rate.NewEngine),
	fx.Provide(func(r *graph.Resolver) Graph { return r }),
	fx.Provide(New),
)
