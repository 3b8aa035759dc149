package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/Vihanga22365/governance-analysis/internal/governance"
	"github.com/Vihanga22365/governance-analysis/pkg/backend"
	"github.com/Vihanga22365/governance-analysis/pkg/domain"
	"github.com/Vihanga22365/governance-analysis/pkg/policy"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
)

// Error codes produced by the API layer itself.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeRateLimited        = "RATE_LIMITED"
	CodeBackendError       = "BACKEND_ERROR"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeSourceError        = "SOURCE_ERROR"
	CodePolicyUnavailable  = "POLICY_UNAVAILABLE"
	CodeAggregationFailed  = "AGGREGATION_FAILED"
	CodeTimeout            = "TIMEOUT"
	CodeInternal           = "INTERNAL"
)

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, domain.ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: telemetry.TraceID(c.Request.Context()),
	})
}

// fail maps err onto a status code and the standard error body.
func (s *server) fail(c *gin.Context, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "route", c.FullPath(), "governance_id", c.Param("id"), "error", err)
	} else {
		s.logger.Debug("request rejected", "route", c.FullPath(), "code", code, "error", err)
	}
	writeError(c, status, code, message)
}

func classify(err error) (int, string, string) {
	var (
		verr     *domain.ValidationError
		bindErrs validator.ValidationErrors
		httpErr  *backend.HTTPError
		srcErr   *domain.SourceError
	)

	switch {
	case errors.As(err, &verr):
		if verr.Code == domain.CodePolicyDenied {
			return http.StatusForbidden, verr.Code, verr.Error()
		}
		return http.StatusBadRequest, verr.Code, verr.Error()
	case errors.As(err, &bindErrs):
		return http.StatusBadRequest, CodeInvalidRequest, describeBindErrors(bindErrs)
	case errors.As(err, &httpErr):
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return httpErr.StatusCode, CodeBackendError, httpErr.Error()
		}
		return http.StatusBadGateway, CodeBackendError, httpErr.Error()
	case errors.Is(err, governance.ErrCircuitOpen):
		return http.StatusServiceUnavailable, CodeBackendUnavailable, "backend unavailable"
	case errors.Is(err, policy.ErrPolicyUnavailable):
		return http.StatusServiceUnavailable, CodePolicyUnavailable, "approval policy unavailable"
	case errors.As(err, &srcErr):
		return http.StatusBadGateway, CodeSourceError, srcErr.Message
	case errors.Is(err, domain.ErrAggregation):
		return http.StatusInternalServerError, CodeAggregationFailed, "snapshot aggregation failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout, "backend request timed out"
	case isDecodeError(err):
		return http.StatusBadRequest, CodeInvalidRequest, "malformed JSON body"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

func describeBindErrors(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func isDecodeError(err error) bool {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
