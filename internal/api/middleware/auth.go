package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/api/shared"
	"github.com/phrazzld/medscry/internal/platform/logger"
)

// clockSkew is the leeway allowed on exp and nbf.
const clockSkew = 30 * time.Second

// Claims are the bearer token claims. The subject is the learner id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies HS256 bearer tokens issued by the identity provider.
type AuthMiddleware struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthMiddleware creates an AuthMiddleware for the shared signing secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	if secret == "" {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("jwt secret cannot be empty")
	}
	return &AuthMiddleware{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Authenticate validates the Authorization header and stores the learner id
// and role in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.parse(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
				return
			}
			log.Debug("rejected bearer token", slog.String("reason", err.Error()))
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			return
		}

		learnerID, err := uuid.Parse(claims.Subject)
		if err != nil || learnerID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := shared.WithIdentity(r.Context(), learnerID, claims.Role)
		ctx = logger.WithContext(ctx, log.With(slog.String("learner_id", learnerID.String())))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RequireRole rejects authenticated callers whose role claim differs from role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shared.GetRole(r.Context()) != role {
				shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Insufficient role",
					fmt.Errorf("role %q required", role), shared.WithElevatedLogLevel())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SignToken issues an HS256 token for learnerID. The identity provider owns
// token issuance in production; this serves local development and tests.
func SignToken(secret string, learnerID uuid.UUID, role string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   learnerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
