package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
)

type createContractRequest struct {
	StudentID        string                     `json:"student_id"`
	BillingType      string                     `json:"billing_type"`
	PaymentSchedule  string                     `json:"payment_schedule"`
	AbsencePolicy    string                     `json:"absence_policy"`
	BillingDay       int                        `json:"billing_day"`
	MonthlyAmount    int64                      `json:"monthly_amount"`
	PerSessionAmount int64                      `json:"per_session_amount"`
	TotalSessions    int                        `json:"total_sessions"`
	Account          contractdomain.AccountInfo `json:"account"`
	StartedAt        string                     `json:"started_at"`
	EndedAt          string                     `json:"ended_at,omitempty"`
}

func (s *Server) CreateContract(c *gin.Context) {
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	studentID, err := parseSnowflakeID(req.StudentID)
	if err != nil {
		AbortWithError(c, newValidationError("student_id", "invalid_student_id", "invalid student_id"))
		return
	}

	startedAt, err := parseDate(req.StartedAt)
	if err != nil {
		AbortWithError(c, newValidationError("started_at", "invalid_started_at", "invalid started_at"))
		return
	}

	endedAt, err := parseOptionalDate(req.EndedAt)
	if err != nil {
		AbortWithError(c, newValidationError("ended_at", "invalid_ended_at", "invalid ended_at"))
		return
	}

	resp, err := s.contractSvc.Create(c.Request.Context(), contractdomain.CreateContractRequest{
		StudentID:        studentID,
		BillingType:      contractdomain.BillingType(strings.TrimSpace(req.BillingType)),
		PaymentSchedule:  contractdomain.PaymentSchedule(strings.TrimSpace(req.PaymentSchedule)),
		AbsencePolicy:    contractdomain.AbsencePolicy(strings.TrimSpace(req.AbsencePolicy)),
		BillingDay:       req.BillingDay,
		MonthlyAmount:    req.MonthlyAmount,
		PerSessionAmount: req.PerSessionAmount,
		TotalSessions:    req.TotalSessions,
		Account:          req.Account,
		StartedAt:        startedAt,
		EndedAt:          endedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListContracts(c *gin.Context) {
	var query struct {
		StudentID string `form:"student_id"`
		Status    string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := contractdomain.ListContractRequest{
		Status: contractdomain.ContractStatus(strings.TrimSpace(query.Status)),
	}
	if strings.TrimSpace(query.StudentID) != "" {
		studentID, err := parseSnowflakeID(query.StudentID)
		if err != nil {
			AbortWithError(c, newValidationError("student_id", "invalid_student_id", "invalid student_id"))
			return
		}
		req.StudentID = studentID
	}

	resp, err := s.contractSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetContractByID(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.contractSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateContractStatus(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.contractSvc.UpdateStatus(c.Request.Context(), id, contractdomain.ContractStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type extendContractRequest struct {
	Type            string `json:"type"`
	AddedSessions   int    `json:"added_sessions,omitempty"`
	ExtensionAmount int64  `json:"extension_amount,omitempty"`
	NewEnd          string `json:"new_end,omitempty"`
}

func (s *Server) ExtendContract(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req extendContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	newEnd, err := parseOptionalDate(req.NewEnd)
	if err != nil {
		AbortWithError(c, newValidationError("new_end", "invalid_new_end", "invalid new_end"))
		return
	}

	resp, err := s.contractSvc.Extend(c.Request.Context(), id, contractdomain.ExtendContractRequest{
		Type:            strings.TrimSpace(req.Type),
		AddedSessions:   req.AddedSessions,
		ExtensionAmount: req.ExtensionAmount,
		NewEnd:          newEnd,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
