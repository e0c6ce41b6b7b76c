// Package auth guards the review endpoints. Reviewing a ghost account is an
// attributed action, so the middleware requires a signed token and places the
// reviewer's identity on the request context for handlers to record.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ReviewerClaims is what we expect inside a reviewer token.
type ReviewerClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Validator checks a bearer token and returns the reviewer claims.
type Validator interface {
	ValidateToken(tokenString string) (*ReviewerClaims, error)
}

// HMACValidator validates HS256 tokens signed with a shared key.
type HMACValidator struct {
	key []byte
}

// NewHMACValidator builds a validator for the given signing key.
func NewHMACValidator(key []byte) (*HMACValidator, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	return &HMACValidator{key: key}, nil
}

// ValidateToken parses and verifies a token. Expiry and not-before are
// enforced by the parser; the email claim is required because reviews are
// attributed to it.
func (v *HMACValidator) ValidateToken(tokenString string) (*ReviewerClaims, error) {
	claims := &ReviewerClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("token has no email claim")
	}
	return claims, nil
}

type contextKeyReviewerEmail struct{}
type contextKeyReviewerName struct{}

// ContextKeyReviewerEmail is exported for use in handlers.
var (
	ContextKeyReviewerEmail = contextKeyReviewerEmail{}
	ContextKeyReviewerName  = contextKeyReviewerName{}
)

// GetReviewerEmail retrieves the authenticated reviewer from the context.
func GetReviewerEmail(ctx context.Context) string {
	email, ok := ctx.Value(ContextKeyReviewerEmail).(string)
	if !ok {
		return ""
	}
	return email
}

// GetReviewerName retrieves the reviewer's display name from the context.
func GetReviewerName(ctx context.Context) string {
	name, ok := ctx.Value(ContextKeyReviewerName).(string)
	if !ok {
		return ""
	}
	return name
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireReviewer rejects requests without a valid bearer token and stores the
// reviewer identity on the context for the wrapped handler.
func RequireReviewer(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				logger.WarnContext(r.Context(), "unauthorized review request - missing token")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized review request - invalid token", "error", err)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyReviewerEmail, claims.Email)
			ctx = context.WithValue(ctx, ContextKeyReviewerName, claims.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
