package ledger

import (
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
