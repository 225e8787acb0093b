package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// extractBearer extracts the token from the Authorization header.
func extractBearer(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func abortUnauthorized(c *gin.Context, reason string) {
	status, body := errors.ToErrorResponse(errors.ErrUnauthorized(reason))
	c.AbortWithStatusJSON(status, body)
}

// RequireServiceToken protects routes called by authentication hosts. Hosts
// present an HS256 token signed with the shared secret; its subject is the
// caller name. When service auth is disabled every request passes.
// RequireServiceToken 校验认证主机携带的服务令牌。
func RequireServiceToken(cfg config.ServiceAuthConfig, log logger.Logger) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	secret := []byte(cfg.Secret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		tokenStr := extractBearer(c.GetHeader("Authorization"))
		if tokenStr == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || claims.Subject == "" {
			log.Warn(c.Request.Context(), "service token rejected", logger.Err(err))
			abortUnauthorized(c, "invalid service token")
			return
		}

		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyCaller, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(constants.ContextKeyCaller), claims.Subject)
		c.Next()
	}
}
