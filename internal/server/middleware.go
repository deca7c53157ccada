package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/thelesson/lessonbill/internal/usercontext"
	"go.uber.org/zap"
)

const headerUserID = "X-User-ID"

// UserRequired resolves the caller identity from the X-User-ID header and
// stashes it on the request context.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := usercontext.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
