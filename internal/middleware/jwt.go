package middleware // reusable HTTP middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// Context keys set by JWTAuth.
const (
	staffKey = "staff"
	roleKey  = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// issued by the staff auth service.  Tokens are verified, not issued, here.
// The subject becomes the staff ID and the "name" claim the display name;
// both are recorded on gate logs, tickets and booking notes.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Only HMAC-signed tokens are accepted.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				// Some issuers put a numeric id in sub.
				if v, ok := claims["sub"]; ok && v != nil {
					sub = fmt.Sprint(v)
				}
			}
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has no subject"})
			}
			name, _ := claims["name"].(string)
			role, _ := claims["role"].(string)

			c.Set(staffKey, model.Staff{ID: sub, Name: name})
			c.Set(roleKey, role)
			return next(c)
		}
	}
}
