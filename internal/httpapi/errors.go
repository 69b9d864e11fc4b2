package httpapi

import (
	"errors"
	"net/http"

	"github.com/aurumvault/adminauth"
	"github.com/gin-gonic/gin"
)

// errorTypeInvalidRequest marks malformed request bodies. It is not an
// engine error kind.
const errorTypeInvalidRequest = "INVALID_REQUEST"

type errorResponse struct {
	ErrorType         string `json:"errorType"`
	Message           string `json:"message"`
	RemainingTime     *int64 `json:"remainingTime,omitempty"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
}

var kindStatus = map[adminauth.ErrorKind]int{
	adminauth.KindInvalidEmail:    http.StatusForbidden,
	adminauth.KindAccountLocked:   http.StatusLocked,
	adminauth.KindOTPExpired:      http.StatusUnauthorized,
	adminauth.KindOTPInvalid:      http.StatusUnauthorized,
	adminauth.KindRateLimited:     http.StatusTooManyRequests,
	adminauth.KindEmailSendFailed: http.StatusBadGateway,
	adminauth.KindSessionExpired:  http.StatusUnauthorized,
}

func (s *server) writeError(c *gin.Context, err error) {
	var ae *adminauth.AuthError
	if errors.As(err, &ae) {
		resp := errorResponse{
			ErrorType: string(ae.Kind),
			Message:   ae.Message(),
		}
		switch ae.Kind {
		case adminauth.KindRateLimited, adminauth.KindAccountLocked:
			secs := ae.RemainingSeconds()
			resp.RemainingTime = &secs
			c.Header("Retry-After", formatSeconds(secs))
		case adminauth.KindOTPInvalid:
			left := ae.RemainingAttempts
			resp.RemainingAttempts = &left
		}
		status, ok := kindStatus[ae.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		c.JSON(status, resp)
		return
	}

	switch {
	case errors.Is(err, adminauth.ErrUnavailable), errors.Is(err, adminauth.ErrEngineNotReady):
		s.logger.ErrorContext(c.Request.Context(), "auth backend unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			ErrorType: "UNAVAILABLE",
			Message:   "The service is temporarily unavailable. Try again.",
		})
	default:
		s.logger.ErrorContext(c.Request.Context(), "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{
			ErrorType: "INTERNAL",
			Message:   "Something went wrong. Try again.",
		})
	}
}

func badRequest(c *gin.Context, errorType, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{ErrorType: errorType, Message: message})
}
