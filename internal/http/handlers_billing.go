package http

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"finance-billing-go/internal/billing"
	"finance-billing-go/internal/gateway"
)

func (s *Server) reqCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(s.cfg.ReqTimeoutSec)*time.Second)
}

// handleWebhook is the inbound gateway callback. Everything past a valid
// signature and shape is acknowledged with 200 so the gateway does not build
// a retry storm; processing failures are logged and audited instead.
func (s *Server) handleWebhook(c *gin.Context) {
	if ok, reset := s.webhookLimiter.Allow(c.ClientIP(), "webhook"); !ok {
		c.Header("Retry-After", strconv.Itoa(int(time.Until(reset).Seconds())+1))
		c.JSON(429, gin.H{"error": "rate_limited"})
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(400, gin.H{"error": "unreadable_body"})
		return
	}
	sig := c.GetHeader("X-Webhook-Signature")

	ctx, cancel := s.reqCtx(c)
	defer cancel()

	switch err := s.reconciler.ProcessWebhook(ctx, raw, sig); {
	case err == nil:
		c.JSON(200, gin.H{"status": "ok"})
	case errors.Is(err, billing.ErrInvalidSignature):
		c.JSON(401, gin.H{"error": "invalid_signature"})
	case errors.Is(err, billing.ErrMalformedPayload):
		c.JSON(400, gin.H{"error": "malformed_payload"})
	default:
		s.log.Error().Err(err).Msg("webhook processing failed")
		c.JSON(200, gin.H{"status": "acknowledged"})
	}
}

func (s *Server) listPlans(c *gin.Context) {
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	plans, err := s.plans.List(ctx)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, plans)
}

func (s *Server) createSubscription(c *gin.Context) {
	var payload struct {
		PlanID        uint   `json:"plan_id" binding:"required"`
		CustomerEmail string `json:"customer_email" binding:"required"`
		CustomerName  string `json:"customer_name"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.reqCtx(c)
	defer cancel()
	res, err := s.billing.CreateSubscription(ctx, ownerID(c), payload.PlanID,
		gateway.Customer{Email: payload.CustomerEmail, Name: payload.CustomerName})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(201, res)
}

func (s *Server) getSubscription(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	sub, err := s.billing.GetSubscription(ctx, ownerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(200, sub)
}

func (s *Server) updateSubscription(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var payload struct {
		PlanID        uint   `json:"plan_id" binding:"required"`
		Immediate     bool   `json:"immediate"`
		CustomerEmail string `json:"customer_email"`
		CustomerName  string `json:"customer_name"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.reqCtx(c)
	defer cancel()
	res, err := s.billing.UpdateSubscription(ctx, id, payload.PlanID, payload.Immediate,
		gateway.Customer{Email: payload.CustomerEmail, Name: payload.CustomerName})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(200, res)
}

func (s *Server) cancelSubscription(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	immediate := c.Query("immediate") == "true"

	ctx, cancel := s.reqCtx(c)
	defer cancel()
	sub, err := s.billing.CancelSubscription(ctx, id, immediate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(200, sub)
}

func (s *Server) checkFeatureAccess(c *gin.Context) {
	feature := c.Query("feature")
	if feature == "" {
		c.JSON(400, gin.H{"error": "feature query param required"})
		return
	}
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	ok, err := s.billing.CheckFeatureAccess(ctx, ownerID(c), feature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(200, gin.H{"feature": feature, "allowed": ok})
}

func (s *Server) verifyPayment(c *gin.Context) {
	var payload struct {
		Reference string `json:"reference" binding:"required"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	txn, err := s.billing.VerifyPayment(ctx, payload.Reference)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(200, txn)
}

func (s *Server) listEntries(c *gin.Context) {
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	entries, err := s.entries.ListByOwner(ctx, ownerID(c))
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, entries)
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
