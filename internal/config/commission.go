package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CommissionPolicy holds the referral commission and discount percentages.
// Rates are percentages, e.g. 20 means 20%.
type CommissionPolicy struct {
	PartnerInitialRate     float64       `mapstructure:"partnerInitialRate"`
	PartnerLifetimeRate    float64       `mapstructure:"partnerLifetimeRate"`
	InfluencerInitialRate  float64       `mapstructure:"influencerInitialRate"`
	InfluencerLifetimeRate float64       `mapstructure:"influencerLifetimeRate"`
	CustomerCreditRate     float64       `mapstructure:"customerCreditRate"`
	CustomerLifetimeRate   float64       `mapstructure:"customerLifetimeRate"`
	RefereeDiscountPercent float64       `mapstructure:"refereeDiscountPercent"`
	ReferralTTL            time.Duration `mapstructure:"referralTTL"`
	MaxGraphDepth          int           `mapstructure:"maxGraphDepth"`
}

func DefaultCommissionPolicy() CommissionPolicy {
	return CommissionPolicy{
		PartnerInitialRate:     20,
		PartnerLifetimeRate:    5,
		InfluencerInitialRate:  20,
		InfluencerLifetimeRate: 5,
		CustomerCreditRate:     10,
		CustomerLifetimeRate:   0,
		RefereeDiscountPercent: 20,
		ReferralTTL:            90 * 24 * time.Hour,
		MaxGraphDepth:          10,
	}
}

// PolicySource exposes the current commission policy.
type PolicySource interface {
	Get() CommissionPolicy
}

// StaticPolicy is a PolicySource that never changes.
type StaticPolicy CommissionPolicy

func (p StaticPolicy) Get() CommissionPolicy { return CommissionPolicy(p) }

type CommissionPolicyHolder struct {
	current atomic.Value // holds CommissionPolicy
}

func NewCommissionPolicyHolder() (*CommissionPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("commission")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/pawtraits")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAWTRAITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCommissionPolicy()
	v.SetDefault("commission.partnerInitialRate", defaults.PartnerInitialRate)
	v.SetDefault("commission.partnerLifetimeRate", defaults.PartnerLifetimeRate)
	v.SetDefault("commission.influencerInitialRate", defaults.InfluencerInitialRate)
	v.SetDefault("commission.influencerLifetimeRate", defaults.InfluencerLifetimeRate)
	v.SetDefault("commission.customerCreditRate", defaults.CustomerCreditRate)
	v.SetDefault("commission.customerLifetimeRate", defaults.CustomerLifetimeRate)
	v.SetDefault("commission.refereeDiscountPercent", defaults.RefereeDiscountPercent)
	v.SetDefault("commission.referralTTL", defaults.ReferralTTL)
	v.SetDefault("commission.maxGraphDepth", defaults.MaxGraphDepth)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg CommissionPolicy
	if err := v.UnmarshalKey("commission", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateCommissionPolicy(cfg); err != nil {
		return nil, err
	}

	holder := &CommissionPolicyHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated CommissionPolicy
			if err := v.UnmarshalKey("commission", &updated); err != nil {
				log.Printf("[commission-config] reload failed: %v", err)
				return
			}
			if err := ValidateCommissionPolicy(updated); err != nil {
				log.Printf("[commission-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[commission-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticCommissionPolicyHolder returns a holder pinned to cfg.
func NewStaticCommissionPolicyHolder(cfg CommissionPolicy) *CommissionPolicyHolder {
	holder := &CommissionPolicyHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *CommissionPolicyHolder) Get() CommissionPolicy {
	return h.current.Load().(CommissionPolicy)
}

func ValidateCommissionPolicy(cfg CommissionPolicy) error {
	rates := []float64{
		cfg.PartnerInitialRate,
		cfg.PartnerLifetimeRate,
		cfg.InfluencerInitialRate,
		cfg.InfluencerLifetimeRate,
		cfg.CustomerCreditRate,
		cfg.CustomerLifetimeRate,
		cfg.RefereeDiscountPercent,
	}
	for _, rate := range rates {
		if rate < 0 || rate > 100 {
			return errors.New("commission rates must be between 0 and 100")
		}
	}
	if cfg.ReferralTTL <= 0 {
		return errors.New("commission.referralTTL must be positive")
	}
	if cfg.MaxGraphDepth <= 0 {
		return errors.New("commission.maxGraphDepth must be positive")
	}
	return nil
}
