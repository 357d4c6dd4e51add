package middleware

import (
	"github.com/gin-gonic/gin"
	"wallet-link.backend/pkg/jwt"
)

const (
	// ClientTokenCookie is the browser-held pairing identity cookie
	ClientTokenCookie = "ct"
	clientTokenCtxKey = "client_token"
)

// ClientTokenMiddleware resolves the `ct` cookie into the wrapped client
// token. The cookie is optional here; handlers that require it use
// GetClientToken and reject when absent.
func ClientTokenMiddleware(tokens *jwt.ClientTokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cookie, err := c.Cookie(ClientTokenCookie); err == nil && cookie != "" {
			if clientToken, err := tokens.Parse(cookie); err == nil {
				c.Set(clientTokenCtxKey, clientToken)
			}
		}
		c.Next()
	}
}

// GetClientToken returns the parsed client token for this request
func GetClientToken(c *gin.Context) (string, bool) {
	v, ok := c.Get(clientTokenCtxKey)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	return token, ok && token != ""
}
