package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/saffronhouse/orders-backend/api/responses"
	"github.com/saffronhouse/orders-backend/pkg/auth"
	"github.com/saffronhouse/orders-backend/pkg/config"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/logger"
)

// Auth validates a staff bearer token and seeds the request context with its claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := staffClaims(cfg, r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithStaff(r.Context(), claims.StaffID(), claims.Role)
			if logg != nil {
				ctx = logg.WithFields(logg.WithActorRole(ctx, claims.Role.String()), map[string]any{"staff_id": claims.StaffID()})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func staffClaims(cfg config.JWTConfig, r *http.Request) (*auth.AccessTokenClaims, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(raw, " "); ok && strings.EqualFold(scheme, "bearer") {
		raw = strings.TrimSpace(token)
	}
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	claims, err := auth.ParseAccessToken(cfg, raw)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "token expired")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	case claims.StaffID() == "":
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token subject missing")
	}
	return claims, nil
}
