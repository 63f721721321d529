package daemon

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"syndicate/internal/api"
	"syndicate/internal/auth"
	"syndicate/internal/logging"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errForbidden    = errors.New("forbidden")
)

// principal is the authenticated caller of an API request.
type principal struct {
	admin bool
	buyer string
	scope api.Scope
}

type principalKey struct{}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

// authenticate resolves the bearer token into a principal. With no api_token
// configured, requests without credentials are treated as the operator.
func (s *apiServer) authenticate(r *http.Request) (principal, error) {
	adminToken := strings.TrimSpace(s.cfg.Paths.APIToken)
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		if adminToken == "" {
			return principal{admin: true}, nil
		}
		return principal{}, errUnauthorized
	}
	if adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) == 1 {
		return principal{admin: true}, nil
	}

	claims, err := auth.Validate(s.cfg.Auth.JWTSecret, token)
	if err != nil {
		return principal{}, errUnauthorized
	}
	scope, err := s.daemon.api.BuyerScope(r.Context(), claims.Buyer)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.log()), "buyer token rejected", "api_buyer_rejected",
			logging.String("buyer", claims.Buyer),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the buyer cannot read its queues"),
		)
		return principal{}, errForbidden
	}
	return principal{buyer: claims.Buyer, scope: scope}, nil
}

// scoped admits operators and buyers; buyers see only their own queues.
func (s *apiServer) scoped(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.authenticate(r)
		if err != nil {
			s.writeAuthError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	}
}

// adminOnly admits only the operator token.
func (s *apiServer) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return s.scoped(func(w http.ResponseWriter, r *http.Request) {
		if !principalFrom(r.Context()).admin {
			s.writeError(w, http.StatusForbidden, errForbidden.Error())
			return
		}
		next(w, r)
	})
}

func (s *apiServer) writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, errForbidden) {
		s.writeError(w, http.StatusForbidden, err.Error())
		return
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="syndicate"`)
	s.writeError(w, http.StatusUnauthorized, errUnauthorized.Error())
}
