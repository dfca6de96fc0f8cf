package adapters

import (
	"strings"

	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/adapters/stripe"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/domain"
)

type Registry struct {
	adapters map[string]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[string]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		provider := normalize(adapter.Provider())
		if provider == "" {
			continue
		}
		registry.adapters[provider] = adapter
	}
	return registry
}

// FromConfig registers every provider whose webhook secret is configured.
func FromConfig(cfg config.Config) *Registry {
	var configured []domain.Adapter
	if secret := strings.TrimSpace(cfg.StripeWebhookSecret); secret != "" {
		configured = append(configured, stripe.New(secret, cfg.StripeTolerance))
	}
	return NewRegistry(configured...)
}

func (r *Registry) Adapter(provider string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
