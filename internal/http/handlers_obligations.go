package http

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"finance-billing-go/internal/models"
	"finance-billing-go/internal/store"
)

type obligationPayload struct {
	Kind        models.ObligationKind `json:"kind"`
	Title       string                `json:"title"`
	Amount      decimal.Decimal       `json:"amount"`
	Currency    string                `json:"currency"`
	Frequency   models.Frequency      `json:"frequency"`
	NextDueDate string                `json:"next_due_date"`
	EndDate     string                `json:"end_date"`
	CategoryID  uint                  `json:"category_id"`
	Vendor      string                `json:"vendor"`
}

func (s *Server) createObligation(c *gin.Context) {
	var p obligationPayload
	if err := c.BindJSON(&p); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if p.Amount.Sign() <= 0 {
		c.JSON(400, gin.H{"error": "amount must be positive"})
		return
	}
	if !p.Frequency.Valid() {
		c.JSON(400, gin.H{"error": "frequency must be one of daily, weekly, monthly, yearly"})
		return
	}
	if p.Kind != models.ObligationIncome && p.Kind != models.ObligationExpense {
		c.JSON(400, gin.H{"error": "kind must be income or expense"})
		return
	}
	due, err := time.Parse("2006-01-02", p.NextDueDate)
	if err != nil {
		c.JSON(400, gin.H{"error": "next_due_date must be YYYY-MM-DD"})
		return
	}
	ob := models.RecurringObligation{
		OwnerID:     ownerID(c),
		Kind:        p.Kind,
		Title:       p.Title,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Frequency:   p.Frequency,
		NextDueDate: due,
		IsActive:    true,
		CategoryID:  p.CategoryID,
		Vendor:      p.Vendor,
	}
	if p.EndDate != "" {
		end, err := time.Parse("2006-01-02", p.EndDate)
		if err != nil {
			c.JSON(400, gin.H{"error": "end_date must be YYYY-MM-DD"})
			return
		}
		ob.EndDate = &end
	}

	ctx, cancel := s.reqCtx(c)
	defer cancel()
	if err := s.obligations.Create(ctx, &ob); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(201, ob)
}

func (s *Server) listObligations(c *gin.Context) {
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	obs, err := s.obligations.ListByOwner(ctx, ownerID(c))
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, obs)
}

func (s *Server) getObligation(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	ob, err := s.obligations.ByID(ctx, ownerID(c), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(404, gin.H{"error": "obligation not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, ob)
}

func (s *Server) updateObligation(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	ob, err := s.obligations.ByID(ctx, ownerID(c), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(404, gin.H{"error": "obligation not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	var input map[string]any
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if v, ok := input["title"].(string); ok {
		ob.Title = v
	}
	if v, ok := input["amount"].(float64); ok {
		if v <= 0 {
			c.JSON(400, gin.H{"error": "amount must be positive"})
			return
		}
		ob.Amount = decimal.NewFromFloat(v)
	}
	if v, ok := input["frequency"].(string); ok {
		f := models.Frequency(v)
		if !f.Valid() {
			c.JSON(400, gin.H{"error": "invalid frequency"})
			return
		}
		ob.Frequency = f
	}
	if v, ok := input["vendor"].(string); ok {
		ob.Vendor = v
	}
	if v, ok := input["end_date"].(string); ok {
		end, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(400, gin.H{"error": "end_date must be YYYY-MM-DD"})
			return
		}
		ob.EndDate = &end
	}
	if v, ok := input["is_active"].(bool); ok {
		ob.IsActive = v
	}

	if err := s.obligations.Save(ctx, ob); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, ob)
}

// deactivateObligation is a soft delete; the processor never hard-deletes and
// neither does the API.
func (s *Server) deactivateObligation(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	if _, err := s.obligations.ByID(ctx, ownerID(c), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(404, gin.H{"error": "obligation not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if err := s.obligations.Deactivate(ctx, id); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"message": "obligation deactivated"})
}
