package reconciliation

import (
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ratelimit"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(repository.Provide),
	fx.Provide(lockerFrom),
	fx.Provide(service.New),
)

// lockerFrom keeps a missing redis client from surfacing as a non-nil Locker.
func lockerFrom(l *ratelimit.Locker) domain.Locker {
	if l == nil {
		return nil
	}
	return l
}
