package middleware

import (
	"net/http"
	"strings"

	"ticketly/internal/auth"
	"ticketly/internal/shared/config"
	"ticketly/internal/shared/utils/response"
	"ticketly/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// JWTAuth validates the access token and consults the token gate for
// revocation before letting the request through.
func JWTAuth(cfg *config.Config, gate auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Authorization header is required", nil, nil)
			c.Abort()
			return
		}

		claims, err := parseAccessToken(tokenString, cfg.JWT.Secret)
		if err != nil {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid or expired token", nil, nil)
			c.Abort()
			return
		}

		if gate.IsBlacklisted(c.Request.Context(), tokenString) {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "token has been revoked", nil, nil)
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Set("access_token", tokenString)

		c.Next()
	}
}

// OptionalAuth validates the token when present but never rejects. Used
// at the websocket handshake where anonymous viewers are allowed.
func OptionalAuth(cfg *config.Config, gate auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			// Websocket clients cannot set headers; accept a query token
			tokenString = c.Query("token")
			if tokenString == "" {
				c.Next()
				return
			}
		}

		claims, err := parseAccessToken(tokenString, cfg.JWT.Secret)
		if err != nil {
			c.Next()
			return
		}

		if gate.IsBlacklisted(c.Request.Context(), tokenString) {
			c.Next()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)

		c.Next()
	}
}

// RequireRoles checks if user has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range requiredRoles {
			if userRole.(string) == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireOrganizer requires the organizer or admin role
func RequireOrganizer() gin.HandlerFunc {
	return RequireRoles(string(users.RoleOrganizer), string(users.RoleAdmin))
}

// CurrentUserID returns the authenticated user's id from the context
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	str, ok := raw.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CurrentUserRole returns the authenticated user's role from the context
func CurrentUserRole(c *gin.Context) string {
	if role, exists := c.Get("user_role"); exists {
		if str, ok := role.(string); ok {
			return str
		}
	}
	return ""
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func parseAccessToken(tokenString, secret string) (*auth.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &auth.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	claims, ok := token.Claims.(*auth.JWTClaims)
	if !ok || claims.Type != "access" {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}
