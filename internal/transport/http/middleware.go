package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/emberlink/matchwire-server/internal/auth"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the context key for storing username.
	ContextKeyUsername = "username"
)

// ErrorResponse is the JSON body for HTTP-level rejections.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AuthMiddleware validates bearer tokens on protected HTTP routes.
func AuthMiddleware(cfg *auth.Config, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.FromRequest(c.Request)
		if err != nil {
			logger.Debug().Err(err).Msg("missing or malformed credential")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing or malformed credential"})
			c.Abort()
			return
		}

		claims, err := auth.VerifyToken(cfg, token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUsername, claims.Username)

		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
