package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/thelesson/lessonbill/internal/invoice/domain"
)

func (s *Server) GetInvoiceSections(c *gin.Context) {
	resp, err := s.invoiceSvc.Sections(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceHistory(c *gin.Context) {
	limitMonths, err := parseOptionalInt(c.Query("limit_months"))
	if err != nil {
		AbortWithError(c, newValidationError("limit_months", "invalid_limit_months", "invalid limit_months"))
		return
	}
	months := 0
	if limitMonths != nil {
		months = *limitMonths
	}

	resp, err := s.invoiceSvc.History(c.Request.Context(), months)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApplyInvoiceAdjustment(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.ApplyManualAdjustment(c.Request.Context(), id, req.Amount, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MoveInvoiceToToday(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.invoiceSvc.MoveToTodayBilling(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecalculateInvoice(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.invoiceSvc.Recalculate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type sendInvoicesRequest struct {
	InvoiceIDs []string `json:"invoice_ids"`
	Channels   []string `json:"channels"`
}

func (s *Server) SendInvoices(c *gin.Context) {
	var req sendInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ids := make([]snowflake.ID, 0, len(req.InvoiceIDs))
	for _, raw := range req.InvoiceIDs {
		id, err := parseSnowflakeID(raw)
		if err != nil {
			AbortWithError(c, newValidationError("invoice_ids", "invalid_invoice_id", "invalid invoice id"))
			return
		}
		ids = append(ids, id)
	}

	resp, err := s.invoiceSvc.Send(c.Request.Context(), invoicedomain.SendInvoicesRequest{
		InvoiceIDs: ids,
		Channels:   req.Channels,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
