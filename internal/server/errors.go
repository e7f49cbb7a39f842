package server

import (
	"errors"
	"net/http"
	"strings"

	categorydomain "github.com/careplix/opdwallet/internal/category/domain"
	coveragedomain "github.com/careplix/opdwallet/internal/coverage/domain"
	enrollmentdomain "github.com/careplix/opdwallet/internal/enrollment/domain"
	planoverridedomain "github.com/careplix/opdwallet/internal/planoverride/domain"
	policydomain "github.com/careplix/opdwallet/internal/policy/domain"
	walletdomain "github.com/careplix/opdwallet/internal/wallet/domain"
	"github.com/gin-gonic/gin"
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

// limitDetail carries the numbers behind a limit rejection so callers can
// show the member exactly how much headroom is left.
type limitDetail struct {
	Requested   int64 `json:"requested"`
	Limit       int64 `json:"limit"`
	Remaining   int64 `json:"remaining"`
	PlanVersion int   `json:"plan_version"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Detail  *limitDetail      `json:"detail,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

	if lErr := asLimitError(err); lErr != nil {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    lErr.Reason.Error(),
			Message: lErr.Error(),
			Detail: &limitDetail{
				Requested:   lErr.Requested,
				Limit:       lErr.Limit,
				Remaining:   lErr.Remaining,
				PlanVersion: lErr.PlanVersion,
			},
		}
	}

	switch {
	case errors.Is(err, walletdomain.ErrBusy):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "busy",
			Message: "wallet is busy, retry with the same idempotency key",
		}
	case errors.Is(err, walletdomain.ErrIdempotencyConflict):
		return http.StatusConflict, errorPayload{
			Type:    "idempotency_conflict",
			Message: "idempotency key was already used with a different payload",
		}
	case errors.Is(err, walletdomain.ErrAlreadyReversed):
		return http.StatusConflict, errorPayload{
			Type:    "already_reversed",
			Message: "transaction is already reversed",
		}
	case errors.Is(err, walletdomain.ErrNotReversible):
		return http.StatusConflict, errorPayload{
			Type:    "not_reversible",
			Message: "only debit transactions can be reversed",
		}
	case errors.Is(err, coveragedomain.ErrDuplicateVersion):
		return http.StatusConflict, errorPayload{
			Type:    "duplicate_plan_version",
			Message: "plan version already exists for this policy",
		}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, walletdomain.ErrNotCovered),
		errors.Is(err, coveragedomain.ErrNoCoverage):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "not_covered",
			Message: "category is not covered for this member",
		}
	case errors.Is(err, walletdomain.ErrPreAuthRequired):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "pre_auth_required",
			Message: "category requires a pre-authorization reference",
		}
	case errors.Is(err, walletdomain.ErrCreditNotApplicable):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "credit_not_applicable",
			Message: "cannot credit an unlimited wallet account",
		}
	case errors.Is(err, enrollmentdomain.ErrNotEnrolled):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "not_enrolled",
			Message: "member has no active enrollment",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
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

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func asLimitError(err error) *walletdomain.LimitError {
	var lErr *walletdomain.LimitError
	if errors.As(err, &lErr) && lErr != nil {
		return lErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isWalletValidationError(err),
		isCoverageValidationError(err),
		isOverrideValidationError(err),
		errors.Is(err, enrollmentdomain.ErrInvalidMember),
		errors.Is(err, policydomain.ErrInvalidPolicy):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, categorydomain.ErrNotFound),
		errors.Is(err, policydomain.ErrNotFound),
		errors.Is(err, coveragedomain.ErrVersionNotFound),
		errors.Is(err, walletdomain.ErrTransactionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isWalletValidationError(err error) bool {
	switch {
	case errors.Is(err, walletdomain.ErrInvalidMember),
		errors.Is(err, walletdomain.ErrInvalidCategory),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, walletdomain.ErrInvalidReference),
		errors.Is(err, walletdomain.ErrInvalidIdempotencyKey),
		errors.Is(err, walletdomain.ErrInvalidTransaction):
		return true
	default:
		return false
	}
}

func isCoverageValidationError(err error) bool {
	switch {
	case errors.Is(err, coveragedomain.ErrInvalidPolicy),
		errors.Is(err, coveragedomain.ErrInvalidPlanVersion),
		errors.Is(err, coveragedomain.ErrInvalidEntries),
		errors.Is(err, coveragedomain.ErrInvalidCategory),
		errors.Is(err, coveragedomain.ErrInvalidLimit):
		return true
	default:
		return false
	}
}

func isOverrideValidationError(err error) bool {
	switch {
	case errors.Is(err, planoverridedomain.ErrInvalidPolicy),
		errors.Is(err, planoverridedomain.ErrInvalidPlanVersion):
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

// classifyErrorForLog buckets an error for the request log without leaking
// internals into the access log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status >= http.StatusBadRequest:
		return "client_error", payload.Type
	default:
		return "", ""
	}
}
