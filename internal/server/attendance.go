package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
)

type recordAttendanceRequest struct {
	ContractID string `json:"contract_id"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
	Note       string `json:"note,omitempty"`
}

func (s *Server) RecordAttendance(c *gin.Context) {
	var req recordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	contractID, err := parseSnowflakeID(req.ContractID)
	if err != nil {
		AbortWithError(c, newValidationError("contract_id", "invalid_contract_id", "invalid contract_id"))
		return
	}

	occurredAt, err := parseDate(req.OccurredAt)
	if err != nil {
		AbortWithError(c, newValidationError("occurred_at", "invalid_occurred_at", "invalid occurred_at"))
		return
	}

	resp, err := s.attendanceSvc.Record(c.Request.Context(), attendancedomain.RecordAttendanceRequest{
		ContractID: contractID,
		Status:     attendancedomain.AttendanceStatus(strings.TrimSpace(req.Status)),
		OccurredAt: occurredAt,
		Note:       strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAttendance(c *gin.Context) {
	contractID, err := parseSnowflakeID(c.Query("contract_id"))
	if err != nil {
		AbortWithError(c, newValidationError("contract_id", "invalid_contract_id", "invalid contract_id"))
		return
	}

	resp, err := s.attendanceSvc.List(c.Request.Context(), contractID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VoidAttendance(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.attendanceSvc.Void(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RescheduleAttendance(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req struct {
		NewDate string `json:"new_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	newDate, err := parseDate(req.NewDate)
	if err != nil {
		AbortWithError(c, newValidationError("new_date", "invalid_new_date", "invalid new_date"))
		return
	}

	resp, err := s.attendanceSvc.Reschedule(c.Request.Context(), id, newDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
