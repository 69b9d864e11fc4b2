package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aurumvault/adminauth"
	"github.com/aurumvault/adminauth/middleware"
	"github.com/gin-gonic/gin"
)

type otpRequestBody struct {
	Email string `json:"email" binding:"required"`
}

type otpVerifyBody struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

type otpRequestResponse struct {
	SentAt    time.Time `json:"sentAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type otpVerifyResponse struct {
	SessionToken string    `json:"sessionToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type otpStatusResponse struct {
	Locked            bool       `json:"locked"`
	LockoutUntil      *time.Time `json:"lockoutUntil,omitempty"`
	CanRequest        bool       `json:"canRequest"`
	NextRequestAt     *time.Time `json:"nextRequestAt,omitempty"`
	RemainingAttempts int        `json:"remainingAttempts"`
	PendingExpiresAt  *time.Time `json:"pendingExpiresAt,omitempty"`
}

type validateResponse struct {
	Valid     bool       `json:"valid"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	ErrorType string     `json:"errorType,omitempty"`
}

// maxCodeLength bounds the submitted code before it reaches the engine.
const maxCodeLength = 32

func (s *server) requestOTP(c *gin.Context) {
	var body otpRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, errorTypeInvalidRequest, "Request body must be JSON with an email.")
		return
	}
	if !adminauth.ValidEmailSyntax(body.Email) {
		badRequest(c, string(adminauth.KindInvalidEmail), "Enter a valid email address.")
		return
	}

	res, err := s.engine.RequestOTP(c.Request.Context(), body.Email)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, otpRequestResponse{
		SentAt:    res.SentAt.UTC(),
		ExpiresAt: res.ExpiresAt.UTC(),
	})
}

func (s *server) verifyOTP(c *gin.Context) {
	var body otpVerifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, errorTypeInvalidRequest, "Request body must be JSON with an email and a code.")
		return
	}
	if !adminauth.ValidEmailSyntax(body.Email) {
		badRequest(c, string(adminauth.KindInvalidEmail), "Enter a valid email address.")
		return
	}
	code := strings.TrimSpace(body.Code)
	if code == "" || len(code) > maxCodeLength {
		badRequest(c, errorTypeInvalidRequest, "Enter the code from the email.")
		return
	}

	sess, err := s.engine.VerifyOTP(c.Request.Context(), body.Email, code)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if s.cookie.Enabled {
		s.setSessionCookie(c, sess.Token, sess.ExpiresAt.Sub(sess.CreatedAt))
	}
	c.JSON(http.StatusOK, otpVerifyResponse{
		SessionToken: sess.Token,
		ExpiresAt:    sess.ExpiresAt.UTC(),
	})
}

func (s *server) otpStatus(c *gin.Context) {
	email := c.Query("email")
	if !adminauth.ValidEmailSyntax(email) {
		badRequest(c, string(adminauth.KindInvalidEmail), "Enter a valid email address.")
		return
	}

	st, err := s.engine.Status(c.Request.Context(), email)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, otpStatusResponse{
		Locked:            st.Locked,
		LockoutUntil:      optionalTime(st.LockoutUntil),
		CanRequest:        st.CanRequest,
		NextRequestAt:     optionalTime(st.NextRequestAt),
		RemainingAttempts: st.RemainingAttempts,
		PendingExpiresAt:  optionalTime(st.PendingExpiresAt),
	})
}

// validateSession always answers 200; validity is in the body so the UI can
// poll it without treating an expired session as a transport error.
func (s *server) validateSession(c *gin.Context) {
	token, ok := middleware.TokenFromRequest(c.Request, s.cookie.Name)
	if !ok {
		c.JSON(http.StatusOK, validateResponse{Valid: false})
		return
	}

	sess, err := s.engine.Session(c.Request.Context(), token)
	if err != nil {
		resp := validateResponse{Valid: false}
		if kind := adminauth.KindOf(err); kind != "" {
			resp.ErrorType = string(kind)
		} else if !errors.Is(err, adminauth.ErrSessionInvalid) {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusOK, validateResponse{
		Valid:     true,
		Email:     sess.Email,
		ExpiresAt: optionalTime(sess.ExpiresAt),
	})
}

func (s *server) logout(c *gin.Context) {
	token, _ := middleware.TokenFromRequest(c.Request, s.cookie.Name)
	if err := s.engine.InvalidateSession(c.Request.Context(), token); err != nil {
		s.writeError(c, err)
		return
	}
	if s.cookie.Enabled {
		s.setSessionCookie(c, "", -time.Second)
	}
	c.Status(http.StatusNoContent)
}

func (s *server) healthz(c *gin.Context) {
	if err := s.engine.Health(c.Request.Context()); err != nil {
		s.logger.WarnContext(c.Request.Context(), "health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) setSessionCookie(c *gin.Context, value string, ttl time.Duration) {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(s.cookie.Name, value, maxAge, "/", s.cookie.Domain, s.cookie.Secure, true)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func formatSeconds(secs int64) string {
	return strconv.FormatInt(secs, 10)
}
