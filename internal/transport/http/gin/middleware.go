package httpgin

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/museyou/gongu-go/internal/domain"
)

const actorKey = "actor"

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}

		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Set("request_id", reqID)

		c.Next()
	}
}

func CORS() gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
			"Idempotency-Key",
			"If-None-Match",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"ETag",
			"Cache-Control",
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	return cors.New(cfg)
}

func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		status := c.Writer.Status()
		reqID, _ := c.Get("request_id")

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.String("ua", c.Request.UserAgent()),
			slog.Any("request_id", reqID),
			slog.Duration("latency", latency),
			slog.Int("bytes_out", c.Writer.Size()),
		}

		// convert []slog.Attr to []any for slog.Group variadic parameter
		anyAttrs := make([]any, len(attrs))
		for i := range attrs {
			anyAttrs[i] = attrs[i]
		}

		if len(c.Errors) > 0 {
			logger.Error("http", slog.Group("http", anyAttrs...))
		} else {
			logger.Info("http", slog.Group("http", anyAttrs...))
		}
	}
}

// sessionClaims is the shape the hosted auth service signs. Only the
// fields the API needs are read.
type sessionClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthRequired validates the Bearer token and stores the actor on the
// request context. Tokens are validated, never issued, here.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			return
		}

		var claims sessionClaims
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token subject"})
			return
		}

		c.Set(actorKey, domain.UserRef{
			ID:    userID,
			Name:  claims.Name,
			Email: claims.Email,
		})

		c.Next()
	}
}

// AdminOnly gates the catalog-management surface behind a configured
// admin account. Runs after AuthRequired.
func AdminOnly(adminUserID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok || adminUserID == "" || actor.ID.String() != adminUserID {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "admin only"})
			return
		}

		c.Next()
	}
}

func actorFrom(c *gin.Context) (domain.UserRef, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.UserRef{}, false
	}

	actor, ok := v.(domain.UserRef)
	return actor, ok
}
