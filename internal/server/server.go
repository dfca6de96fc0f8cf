package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/attribution"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/audit"
	auditdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/audit/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/authorization"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit"
	creditdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/credit/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/identity"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ledger"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/observability"
	obslogger "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/logger"
	obsmetrics "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/metrics"
	obstracing "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/tracing"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order"
	orderdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment"
	paymentdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/payment/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/providers/pdf"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ratelimit"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation"
	recondomain "github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	identity.Module,
	authorization.Module,
	audit.Module,
	order.Module,
	referral.Module,
	ledger.Module,
	credit.Module,
	attribution.Module,
	payment.Module,
	pdf.Module,
	ratelimit.Module,
	reconciliation.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(classifyErrorForLog))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	log            *zap.Logger
	clock          clock.Clock
	identities     *identity.Resolver
	authzSvc       authorization.Service
	orderSvc       orderdomain.Service
	referralSvc    referraldomain.Service
	ledgerSvc      ledgerdomain.Service
	creditSvc      creditdomain.Service
	attributionSvc attribution.Service
	paymentSvc     paymentdomain.Service
	reconSvc       recondomain.Service
	auditSvc       auditdomain.Service
	redeemLimiter  *ratelimit.RedeemLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Log            *zap.Logger
	Clock          clock.Clock
	Identities     *identity.Resolver
	AuthzSvc       authorization.Service
	OrderSvc       orderdomain.Service
	ReferralSvc    referraldomain.Service
	LedgerSvc      ledgerdomain.Service
	CreditSvc      creditdomain.Service
	AttributionSvc attribution.Service
	PaymentSvc     paymentdomain.Service
	ReconSvc       recondomain.Service
	AuditSvc       auditdomain.Service      `optional:"true"`
	RedeemLimiter  *ratelimit.RedeemLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:         p.Gin,
		log:            p.Log.Named("http.server"),
		clock:          p.Clock,
		identities:     p.Identities,
		authzSvc:       p.AuthzSvc,
		orderSvc:       p.OrderSvc,
		referralSvc:    p.ReferralSvc,
		ledgerSvc:      p.LedgerSvc,
		creditSvc:      p.CreditSvc,
		attributionSvc: p.AttributionSvc,
		paymentSvc:     p.PaymentSvc,
		reconSvc:       p.ReconSvc,
		auditSvc:       p.AuditSvc,
		redeemLimiter:  p.RedeemLimiter,
	}

	s.registerPublicRoutes()
	s.registerAPIRoutes()
	s.registerAdminRoutes()
	s.registerWebhookRoutes()
	s.registerFallback()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Storefront flows a visitor reaches before they have a profile.
func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")

	api.POST("/referrals/:code/access", s.AccessReferral)
	api.POST("/customers/signup", s.SignupCustomer)
	api.POST("/checkout/quote", s.QuoteCheckout)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.IdentityRequired())

	api.POST("/referrals", s.authorize(authorization.ObjectReferral, authorization.ActionCreate), s.IssueReferral)

	api.GET("/customers/:id/credit-balance", s.authorize(authorization.ObjectCredit, authorization.ActionView), s.GetCreditBalance)
	api.GET("/customers/:id/credits", s.authorize(authorization.ObjectCredit, authorization.ActionView), s.ListCredits)
	api.POST("/customers/:id/credits/redeem", s.authorize(authorization.ObjectCredit, authorization.ActionRedeem), s.RedeemRateLimit(), s.RedeemCredits)

	api.GET("/referrers/:id/attribution", s.authorize(authorization.ObjectAttribution, authorization.ActionView), s.GetAttributionReport)
	api.GET("/referrers/:id/commissions", s.authorize(authorization.ObjectCommission, authorization.ActionView), s.ListCommissions)

	api.POST("/orders/:id/paid", s.authorize(authorization.ObjectOrder, authorization.ActionMarkPaid), s.MarkOrderPaid)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.IdentityRequired())

	admin.POST("/partners", s.authorize(authorization.ObjectPartner, authorization.ActionCreate), s.RegisterPartner)

	admin.POST("/commissions/:id/approve", s.authorize(authorization.ObjectCommission, authorization.ActionApprove), s.ApproveCommission)
	admin.POST("/commissions/:id/pay", s.authorize(authorization.ObjectCommission, authorization.ActionPay), s.PayCommission)

	admin.POST("/reconciliation/run", s.authorize(authorization.ObjectReconciliation, authorization.ActionRun), s.RunReconciliation)
	admin.GET("/reconciliation/runs", s.authorize(authorization.ObjectReconciliation, authorization.ActionView), s.ListReconciliationRuns)
	admin.GET("/reconciliation/runs/:id", s.authorize(authorization.ObjectReconciliation, authorization.ActionView), s.GetReconciliationRun)
	admin.GET("/reconciliation/runs/:id/pdf", s.authorize(authorization.ObjectReconciliation, authorization.ActionView), s.RenderReconciliationRun)

	if s.auditSvc != nil {
		admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
	}
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
