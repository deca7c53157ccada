package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thelesson/lessonbill/internal/usercontext"
)

func (s *Server) ListNotifications(c *gin.Context) {
	userID, ok := usercontext.UserIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	n := 50
	if limit != nil && *limit > 0 {
		n = *limit
	}

	resp, err := s.notificationSvc.List(c.Request.Context(), userID, n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
