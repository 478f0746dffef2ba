package http

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"finance-billing-go/internal/recurring"
)

func (s *Server) startScheduler(c *gin.Context) {
	// Background context: the scheduler outlives this request.
	s.scheduler.Start(context.Background())
	c.JSON(200, s.scheduler.Stats())
}

func (s *Server) stopScheduler(c *gin.Context) {
	s.scheduler.Stop()
	c.JSON(200, s.scheduler.Stats())
}

func (s *Server) forceRun(c *gin.Context) {
	ctx, cancel := s.reqCtx(c)
	defer cancel()
	res, err := s.scheduler.ForceRun(ctx)
	if err != nil {
		c.JSON(409, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, res)
}

func (s *Server) updateSchedulerConfig(c *gin.Context) {
	var u recurring.ConfigUpdate
	if err := c.BindJSON(&u); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	cfg := s.scheduler.UpdateConfig(u)
	c.JSON(200, cfg)
}

func (s *Server) schedulerStats(c *gin.Context) {
	c.JSON(200, s.scheduler.Stats())
}

func (s *Server) schedulerLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	logs := s.scheduler.Logs(recurring.LogFilter{
		Level: c.Query("level"),
		Limit: limit,
	})
	c.JSON(200, logs)
}
