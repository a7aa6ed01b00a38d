package middleware

import (
	"net/http"
	"strings"

	"agreement-service/pkg/config"
	"agreement-service/pkg/jwtutil"
	"agreement-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var jwtUtil *jwtutil.JWTUtil

// InitAuth initializes the auth middleware with the shared signing key
func InitAuth(cfg *config.Config) {
	jwtUtil = jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey: cfg.JWT.SigningKey,
	})
}

// JWTAuthMiddleware validates bearer JWTs issued by the identity service and
// stores the claims in the request context
func JWTAuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Extract the token from the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Warn("Missing authorization header")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}

		// Check if the header format is valid
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			log.Warn("Invalid authorization header format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization header format"})
		}

		tokenString := parts[1]

		// Validate the token
		claims, err := jwtUtil.ValidateToken(tokenString)
		if err != nil {
			log.Warn("Invalid or expired token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		// Store the claims in the context for later use
		c.Set("user", claims)
		log.Debug("JWT token validated successfully",
			zap.Uint("user_id", claims.UserID),
			zap.String("email", claims.Email))

		return next(c)
	}
}
