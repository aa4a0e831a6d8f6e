package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rleusmann/Cambridge-audio-custom/internal/api"
	"github.com/rleusmann/Cambridge-audio-custom/internal/apperrors"
)

// RegisterRoutes wires auth routes to the router.
func RegisterRoutes(router chi.Router, tokens *Tokens) {
	router.Method(http.MethodPost, "/v1/auth/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.RefreshToken == "" {
			return apperrors.NewValidationError("refresh_token is required", nil)
		}

		accessToken, expiresIn, err := tokens.Refresh(body.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				return apperrors.NewUnauthorizedError("Refresh token has expired", apperrors.ErrorCodeAuthTokenExpired)
			case errors.Is(err, ErrTokenUse):
				return apperrors.NewUnauthorizedError("Invalid token: expected refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			default:
				return apperrors.NewUnauthorizedError("Invalid refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			}
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_refresh",
			"access_token":   accessToken,
			"expires_in_sec": int(expiresIn.Seconds()),
		})
	}))
}
