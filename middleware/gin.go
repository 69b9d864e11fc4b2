package middleware

import (
	"net/http"

	"github.com/aurumvault/adminauth"
	"github.com/gin-gonic/gin"
)

// ginSessionKey is the gin context key RequireSession stores the session under.
const ginSessionKey = "adminauth.session"

// RequireSession is the gin form of [Guard]. Rejections are JSON:
// {"valid": false, "errorType": "SESSION_EXPIRED"} with errorType only set for
// expired sessions.
func RequireSession(engine SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if engine == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"valid": false})
			return
		}

		token, ok := TokenFromRequest(c.Request, cookieName)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"valid": false})
			return
		}

		sess, err := engine.Session(c.Request.Context(), token)
		if err != nil {
			status, kind := rejection(err)
			body := gin.H{"valid": false}
			if kind != "" {
				body["errorType"] = kind
			}
			c.AbortWithStatusJSON(status, body)
			return
		}

		c.Set(ginSessionKey, sess)
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), sess))
		c.Next()
	}
}

// SessionFromGin returns the session stored by RequireSession.
func SessionFromGin(c *gin.Context) (*adminauth.Session, bool) {
	v, ok := c.Get(ginSessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*adminauth.Session)
	return sess, ok && sess != nil
}
