package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	"go.uber.org/zap"
)

const keyRedeemCustomer = "pawtraits:redeem:customer:%s"

// RedeemLimiter throttles credit redemption attempts per customer. A nil or disabled
// limiter allows everything.
type RedeemLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewRedeemLimiter(bucket *TokenBucket, cfg config.Config, log *zap.Logger) *RedeemLimiter {
	if bucket == nil || cfg.RedeemRateLimit <= 0 || cfg.RedeemRateBurst <= 0 {
		return nil
	}
	return &RedeemLimiter{
		bucket: bucket,
		rate:   cfg.RedeemRateLimit,
		burst:  cfg.RedeemRateBurst,
		log:    log.Named("ratelimit.redeem"),
	}
}

func (l *RedeemLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open: a redis error never blocks a redemption, since redemption
// itself is safe under concurrency.
func (l *RedeemLimiter) Allow(ctx context.Context, customerID snowflake.ID) Result {
	if !l.Enabled() {
		return Result{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyRedeemCustomer, customerID.String()), l.rate, l.burst)
	if err != nil {
		l.log.Warn("redeem rate limit check failed", zap.String("customer_id", customerID.String()), zap.Error(err))
		return Result{Allowed: true, Limit: l.burst}
	}
	return res
}
