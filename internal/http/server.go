package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"finance-billing-go/internal/billing"
	"finance-billing-go/internal/config"
	"finance-billing-go/internal/logging"
	"finance-billing-go/internal/ratelimit"
	"finance-billing-go/internal/recurring"
	"finance-billing-go/internal/store"
)

type Server struct {
	cfg            *config.Config
	log            zerolog.Logger
	obligations    *store.Obligations
	entries        *store.Entries
	plans          *store.Plans
	billing        *billing.Service
	reconciler     *billing.Reconciler
	scheduler      *recurring.Scheduler
	webhookLimiter *ratelimit.Limiter
}

type Deps struct {
	Obligations    *store.Obligations
	Entries        *store.Entries
	Plans          *store.Plans
	Billing        *billing.Service
	Reconciler     *billing.Reconciler
	Scheduler      *recurring.Scheduler
	WebhookLimiter *ratelimit.Limiter
}

func NewServer(cfg *config.Config, log zerolog.Logger, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors(cfg))
	r.Use(logging.GinMiddleware(log))
	r.Use(throttle(cfg.RateLimitRPS, cfg.RateLimitBurst))

	s := &Server{
		cfg:            cfg,
		log:            log,
		obligations:    deps.Obligations,
		entries:        deps.Entries,
		plans:          deps.Plans,
		billing:        deps.Billing,
		reconciler:     deps.Reconciler,
		scheduler:      deps.Scheduler,
		webhookLimiter: deps.WebhookLimiter,
	}

	// Gateway callbacks carry their own signature; no owner context.
	r.POST("/v1/webhooks/gateway", s.handleWebhook)

	owned := r.Group("/v1")
	owned.Use(OwnerMiddleware())
	{
		owned.GET("/plans", s.listPlans)

		owned.POST("/subscriptions", s.createSubscription)
		owned.GET("/subscriptions/:id", s.getSubscription)
		owned.PUT("/subscriptions/:id", s.updateSubscription)
		owned.DELETE("/subscriptions/:id", s.cancelSubscription)
		owned.GET("/access", s.checkFeatureAccess)
		owned.POST("/payments/verify", s.verifyPayment)

		owned.POST("/obligations", s.createObligation)
		owned.GET("/obligations", s.listObligations)
		owned.GET("/obligations/:id", s.getObligation)
		owned.PUT("/obligations/:id", s.updateObligation)
		owned.DELETE("/obligations/:id", s.deactivateObligation)
		owned.GET("/entries", s.listEntries)
	}

	admin := r.Group("/v1/scheduler")
	{
		admin.POST("/start", s.startScheduler)
		admin.POST("/stop", s.stopScheduler)
		admin.POST("/run", s.forceRun)
		admin.PATCH("/config", s.updateSchedulerConfig)
		admin.GET("/stats", s.schedulerStats)
		admin.GET("/logs", s.schedulerLogs)
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	return r
}

// respondError maps the billing taxonomy onto HTTP statuses. Duplicate
// deliveries are successes by contract.
func respondError(c *gin.Context, err error) {
	var be *billing.Error
	if errors.As(err, &be) {
		status := http.StatusInternalServerError
		switch be.Code {
		case billing.CodeValidation:
			status = http.StatusBadRequest
		case billing.CodeNotFound:
			status = http.StatusNotFound
		case billing.CodeInvalidTransition:
			status = http.StatusConflict
		case billing.CodeDuplicateDelivery:
			c.JSON(200, gin.H{"status": "already_processed"})
			return
		case billing.CodeGateway:
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": string(be.Code), "message": be.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
