package httpx

import (
	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/auth"
	"github.com/labstack/echo/v4"
)

const userIDKey = "user_id"

// RequireAuth verifies the bearer token and stores the caller's user ID on
// the context.
func RequireAuth(verifier auth.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := auth.ExtractBearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return apperr.Unauthorized("missing_token", "Authorization bearer token required").WithCause(err)
			}
			userID, err := verifier.Verify(token)
			if err != nil {
				return apperr.Unauthorized("invalid_token", "Invalid or expired token").WithCause(err)
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// UserID returns the authenticated caller, or "" outside RequireAuth.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// SetUserID marks c as authenticated as userID.
func SetUserID(c echo.Context, userID string) {
	c.Set(userIDKey, userID)
}
