package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ayush/scrollable/internal/apperr"
	"github.com/ayush/scrollable/internal/auth"
	"github.com/ayush/scrollable/internal/httpx"
	"github.com/ayush/scrollable/internal/models"
	"github.com/ayush/scrollable/internal/store"
)

// UserLookup loads the account a token names.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Authenticator resolves Bearer tokens into users.
type Authenticator struct {
	tokens  *auth.TokenIssuer
	revoker auth.Revoker
	users   UserLookup
	log     logrus.FieldLogger
}

func NewAuthenticator(tokens *auth.TokenIssuer, revoker auth.Revoker, users UserLookup, log logrus.FieldLogger) *Authenticator {
	if revoker == nil {
		revoker = auth.NoopRevoker{}
	}
	return &Authenticator{tokens: tokens, revoker: revoker, users: users, log: log}
}

var (
	errNoToken      = apperr.Unauthorized("No token provided")
	errInvalidToken = apperr.Unauthorized("Invalid token")
	errNoUser       = apperr.Unauthorized("User not found")
)

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func (a *Authenticator) resolve(r *http.Request) (*models.User, *auth.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, nil, errNoToken
	}
	id, err := a.tokens.Verify(raw)
	if err != nil {
		return nil, nil, errInvalidToken
	}
	revoked, err := a.revoker.IsRevoked(r.Context(), id.TokenID)
	if err != nil {
		// A token that cannot be checked against the denylist is refused.
		a.log.WithError(err).WithField("jti", id.TokenID).Warn("revocation check failed")
		return nil, nil, errInvalidToken
	}
	if revoked {
		return nil, nil, errInvalidToken
	}
	user, err := a.users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, errNoUser
		}
		return nil, nil, err
	}
	return user, id, nil
}

// RequireAuth rejects requests without a valid token for an existing user.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, id, err := a.resolve(r)
		if err != nil {
			httpx.Fail(w, r, a.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user, id)))
	})
}

// OptionalAuth attaches the user when the token checks out and otherwise
// carries on anonymously.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, id, err := a.resolve(r)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				a.log.WithError(err).Warn("optional auth lookup failed")
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user, id)))
	})
}
