package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/infrastructure/auth"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/interfaces/http/dto"
)

const claimsKey = "auth_claims"

var errNoBearer = errors.New("no bearer token")

// TokenValidator is satisfied by *auth.JWTService.
type TokenValidator interface {
	ValidateToken(raw string) (*auth.Claims, error)
}

// Authenticate requires a valid bearer token and stores its claims on the
// context. The subject is also attached to the request logger as user_id.
func Authenticate(tokens TokenValidator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var claims *auth.Claims
			if claims, err = tokens.ValidateToken(raw); err == nil {
				SetClaims(c, claims)
				c.Next()
				return
			}
		}

		log.Warn("Authentication failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", GetRequestID(c)),
			zap.Error(err),
		)
		code, msg := authFailure(err)
		abort(c, http.StatusUnauthorized, code, msg)
	}
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errNoBearer
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errNoBearer
	}
	return token, nil
}

func authFailure(err error) (code, message string) {
	switch {
	case errors.Is(err, errNoBearer):
		return dto.ErrCodeTokenInvalid, "Bearer token required"
	case errors.Is(err, auth.ErrExpiredToken):
		return dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return dto.ErrCodeTokenInvalid, "Token is not yet valid"
	case errors.Is(err, auth.ErrMissingSubject):
		return dto.ErrCodeTokenInvalid, "Token has no subject"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidClaims):
		return dto.ErrCodeTokenInvalid, "Invalid token"
	}
	return dto.ErrCodeUnauthorized, "Authentication required"
}

// SetClaims marks the request as made by claims.Subject.
func SetClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(claimsKey, claims)
	if c.Request != nil {
		ctx := c.Request.Context()
		ctx, _ = logger.WithUserID(ctx, logger.FromContext(ctx), claims.Subject)
		c.Request = c.Request.WithContext(ctx)
	}
}

// RequireScope must run after Authenticate.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		switch {
		case claims == nil:
			abort(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
		case !claims.HasScope(scope):
			abort(c, http.StatusForbidden, dto.ErrCodeForbidden, "Token lacks scope "+scope)
		default:
			c.Next()
		}
	}
}

// Claims returns the authenticated claims, or nil.
func Claims(c *gin.Context) *auth.Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*auth.Claims)
	return claims
}

// Subject returns the authenticated operator, or "".
func Subject(c *gin.Context) string {
	if claims := Claims(c); claims != nil {
		return claims.Subject
	}
	return ""
}
