package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"form-analytics/pkg/models"
	"form-analytics/pkg/repository"
)

type ctxKey int

const (
	userKey ctxKey = iota + 1
	localeKey
)

// Claims identify the caller; everything else about the user is looked up
type Claims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for uid
func SignToken(secret []byte, uid string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{UID: uid, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseToken(secret []byte, tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid && c.UID != "" {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// Authenticator resolves bearer tokens into users
type Authenticator struct {
	secret []byte
	users  repository.UserRepository
	logger *slog.Logger
}

func NewAuthenticator(secret []byte, users repository.UserRepository, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{secret: secret, users: users, logger: logger}
}

// WithAuth attaches the current user to the request context when the
// Authorization header carries a valid token for a known user. Requests
// without one pass through anonymously; services decide what that means.
func (a *Authenticator) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			next.ServeHTTP(w, r)
			return
		}

		c, err := parseToken(a.secret, strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil {
			a.logger.Debug("rejected bearer token", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.users.GetByID(r.Context(), c.UID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				a.logger.Error("failed to load user", "uid", c.UID, "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser stores user in ctx
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// CurrentUser returns the user attached by WithAuth, or nil
func CurrentUser(ctx context.Context) *models.User {
	if u, ok := ctx.Value(userKey).(*models.User); ok {
		return u
	}
	return nil
}
