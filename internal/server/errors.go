package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	invoicedomain "github.com/thelesson/lessonbill/internal/invoice/domain"
	studentdomain "github.com/thelesson/lessonbill/internal/student/domain"
	"github.com/thelesson/lessonbill/internal/verification"
	"github.com/thelesson/lessonbill/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, invoicedomain.ErrAlreadySent),
		errors.Is(err, attendancedomain.ErrDuplicateDate),
		errors.Is(err, attendancedomain.ErrAlreadyVoided),
		db.IsDuplicateKeyErr(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, verification.ErrCodeMismatch):
		return true
	case isStudentValidationError(err),
		isContractValidationError(err),
		isAttendanceValidationError(err),
		isInvoiceValidationError(err):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, studentdomain.ErrStudentNotFound),
		errors.Is(err, contractdomain.ErrContractNotFound),
		errors.Is(err, attendancedomain.ErrLogNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isStudentValidationError(err error) bool {
	return errors.Is(err, studentdomain.ErrNameRequired)
}

func isContractValidationError(err error) bool {
	switch {
	case errors.Is(err, contractdomain.ErrInvalidBillingDay),
		errors.Is(err, contractdomain.ErrInvalidBillingType),
		errors.Is(err, contractdomain.ErrInvalidSchedule),
		errors.Is(err, contractdomain.ErrInvalidAbsencePolicy),
		errors.Is(err, contractdomain.ErrInvalidStatus),
		errors.Is(err, contractdomain.ErrNotSessionContract),
		errors.Is(err, contractdomain.ErrInvalidExtension),
		errors.Is(err, contractdomain.ErrExtensionNotBeyond),
		errors.Is(err, contractdomain.ErrContractAlreadyEnded):
		return true
	default:
		return false
	}
}

func isAttendanceValidationError(err error) bool {
	switch {
	case errors.Is(err, attendancedomain.ErrInvalidStatus),
		errors.Is(err, attendancedomain.ErrOutsideContract):
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrNoChannels),
		errors.Is(err, invoicedomain.ErrInvalidAmounts):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == "invalid_request" {
		return "request"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
