package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"finance-billing-go/internal/config"
)

// OwnerMiddleware resolves the acting owner from the X-Owner-ID header set by
// the upstream auth layer. Authentication itself lives outside this service.
func OwnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Owner-ID")
		if raw == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "owner_header_missing"})
			return
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(401, gin.H{"error": "owner_header_invalid"})
			return
		}
		c.Set("ownerID", uint(id))
		c.Next()
	}
}

func ownerID(c *gin.Context) uint {
	return c.MustGet("ownerID").(uint)
}

func cors(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.AllowOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Owner-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, PUT, PATCH, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// throttle is the process-wide request limiter.
func throttle(rps float64, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !lim.Allow() {
			c.AbortWithStatusJSON(429, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
