package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/odin-workspace/ms-go-billing/app/authclient"
	"github.com/odin-workspace/ms-go-billing/app/types"
)

const userIDContextKey = "billing.user_id"

type sessionResolver interface {
	ResolveUser(ctx context.Context, bearerToken string) (string, error)
}

// RequireUser exchanges the bearer credential for a user id and stashes it
// in the echo context. Handlers behind it read the identity with UserID().
func RequireUser(accounts sessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token := bearerToken(ctx.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "authorization bearer token is required"})
			}

			userID, err := accounts.ResolveUser(ctx.Request().Context(), token)
			if err != nil {
				if errors.Is(err, authclient.ErrUnauthorized) {
					return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid or expired session"})
				}
				return ctx.JSON(http.StatusBadGateway, &types.ErrorResponse{Error: "account service unavailable"})
			}

			ctx.Set(userIDContextKey, userID)
			return next(ctx)
		}
	}
}

// UserID returns the identity stored by RequireUser, or "".
func UserID(ctx echo.Context) string {
	userID, _ := ctx.Get(userIDContextKey).(string)
	return userID
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
