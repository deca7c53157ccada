package server

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// RequestVerificationCode issues a one-time code for a phone number. Actual
// delivery is out of scope; non-production environments echo the code back.
func (s *Server) RequestVerificationCode(c *gin.Context) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		AbortWithError(c, newValidationError("phone", "invalid_phone", "invalid phone"))
		return
	}

	code, err := generateVerificationCode()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ttl := time.Duration(s.cfg.VerificationTTLSeconds) * time.Second
	if err := s.verification.Put(c.Request.Context(), phone, code, ttl); err != nil {
		AbortWithError(c, err)
		return
	}

	data := gin.H{"requested": true, "expires_in": int64(ttl.Seconds())}
	if s.cfg.Environment != "production" {
		data["code"] = code
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) ConfirmVerificationCode(c *gin.Context) {
	var req struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.verification.Take(c.Request.Context(), strings.TrimSpace(req.Phone), strings.TrimSpace(req.Code))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"verified": true}})
}
