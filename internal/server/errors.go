package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/attribution"
	auditdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/audit/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/authorization"
	creditdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/credit/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/identity"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	orderdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	paymentdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/payment/domain"
	recondomain "github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db"
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
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
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
		code := err.Error()
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
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identity.ErrUnauthenticated),
		errors.Is(err, identity.ErrUnknownUser),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		db.IsTransient(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the access log the same buckets the response uses.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status == http.StatusInternalServerError {
		return payload.Type, "internal_error"
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, err.Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var validationErrors = []error{
	ErrInvalidRequest,
	identity.ErrInvalidRole,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,
	referraldomain.ErrInvalidKind,
	referraldomain.ErrInvalidEmail,
	referraldomain.ErrInvalidName,
	referraldomain.ErrInvalidCode,
	referraldomain.ErrInvalidReferrer,
	referraldomain.ErrSelfReferral,
	orderdomain.ErrInvalidOrder,
	orderdomain.ErrInvalidEmail,
	orderdomain.ErrInvalidAmount,
	orderdomain.ErrInvalidCurrency,
	ledgerdomain.ErrInvalidOrder,
	ledgerdomain.ErrInvalidRecipient,
	ledgerdomain.ErrInvalidRecipientKind,
	ledgerdomain.ErrInvalidCommissionType,
	ledgerdomain.ErrInvalidRate,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidCurrency,
	ledgerdomain.ErrInvalidStatus,
	ledgerdomain.ErrInvalidCursor,
	creditdomain.ErrInvalidCustomer,
	creditdomain.ErrInvalidOrder,
	creditdomain.ErrInvalidAmount,
	creditdomain.ErrInvalidReason,
	paymentdomain.ErrInvalidProvider,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
	paymentdomain.ErrInvalidOrder,
	recondomain.ErrInvalidBatchSize,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, referraldomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, creditdomain.ErrNotFound),
		errors.Is(err, attribution.ErrNotFound),
		errors.Is(err, recondomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, identity.ErrAlreadyLinked),
		errors.Is(err, referraldomain.ErrCodeTaken),
		errors.Is(err, referraldomain.ErrEmailTaken),
		errors.Is(err, referraldomain.ErrReferralExpired),
		errors.Is(err, referraldomain.ErrReferralAlreadyUsed),
		errors.Is(err, referraldomain.ErrReferralEmailMismatch),
		errors.Is(err, orderdomain.ErrOrderNotPayable),
		errors.Is(err, orderdomain.ErrDuplicateOrderNo),
		errors.Is(err, ledgerdomain.ErrInvalidTransition),
		errors.Is(err, creditdomain.ErrOrderNotPending),
		errors.Is(err, creditdomain.ErrOrderCustomerMismatch),
		errors.Is(err, creditdomain.ErrConcurrentRedemption),
		errors.Is(err, attribution.ErrOrderNotPaid):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	if errors.Is(err, ErrConflict) {
		return "conflict"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
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
