package referral

import (
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/graph"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(graph.NewResolver),
)
