package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

// ScopeAdmin is required for operator endpoints such as pausing modules and
// setting oracle prices.
const ScopeAdmin = "ledger:admin"

// StaticToken binds a bearer token to a caller.
type StaticToken struct {
	Token   string
	Address common.Address
	Scopes  []string
}

// AuthConfig configures the bearer authenticator. JWTs are HS256 signed and
// carry the caller address in the subject claim.
type AuthConfig struct {
	Tokens              []StaticToken
	HMACSecret          string
	Issuer              string
	Audience            string
	ScopeClaim          string
	ClockSkew           time.Duration
	AllowAnonymousReads bool
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Address common.Address
	Scopes  []string
}

// HasScope reports whether the principal carries scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type principalKey struct{}

// PrincipalFrom returns the principal attached by the authenticator.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticator resolves bearer tokens into principals.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

// NewAuthenticator builds an authenticator from cfg.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret)), logger: logger}
}

// Middleware rejects requests without a valid bearer token. Safe methods pass
// anonymously when AllowAnonymousReads is set.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			if a.cfg.AllowAnonymousReads && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
				next.ServeHTTP(w, r)
				return
			}
			writeProblem(w, http.StatusUnauthorized, "Unauthenticated", "missing bearer token")
			return
		}
		principal, err := a.Authenticate(token)
		if err != nil {
			a.logger.Debug("auth: token rejected", slog.Any("error", err))
			writeProblem(w, http.StatusUnauthorized, "Unauthenticated", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireScope rejects principals lacking scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok || !principal.HasScope(scope) {
				writeProblem(w, http.StatusForbidden, "Forbidden", "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal attaches principal to ctx for handlers outside the HTTP router.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// AnonymousReads reports whether read-only calls may omit a token.
func (a *Authenticator) AnonymousReads() bool { return a.cfg.AllowAnonymousReads }

// Authenticate resolves a bearer token against the static tokens first and
// then as an HS256 JWT.
func (a *Authenticator) Authenticate(token string) (Principal, error) {
	for _, static := range a.cfg.Tokens {
		if subtle.ConstantTimeCompare([]byte(static.Token), []byte(token)) == 1 {
			return Principal{Address: static.Address, Scopes: static.Scopes}, nil
		}
	}
	if len(a.secret) == 0 {
		return Principal{}, errors.New("unknown static token")
	}
	claims, err := a.parseToken(token)
	if err != nil {
		return Principal{}, err
	}
	subject, _ := claims["sub"].(string)
	if !common.IsHexAddress(subject) {
		return Principal{}, errors.New("subject is not an address")
	}
	return Principal{Address: common.HexToAddress(subject), Scopes: extractScopes(claims, a.cfg.ScopeClaim)}, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	switch v := claims[scopeClaim].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
