package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"assetpool/crypto"
	"assetpool/observability/logging"
)

// Scopes granted to bearer tokens.
const (
	ScopeTrade    = "pool:trade"
	ScopeAdmin    = "pool:admin"
	ScopeFeed     = "oracle:feed"
	ScopeBorrow   = "loans:write"
	ScopeTreasury = "loans:treasury"
)

// DevAccountHeader names the caller account when authentication is disabled.
const DevAccountHeader = "X-Assetpool-Account"

// AuthConfig configures HMAC-signed bearer tokens.
type AuthConfig struct {
	Disabled   bool
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

// Principal is the authenticated caller. Subject is the ledger account every
// state-changing request acts as.
type Principal struct {
	Subject crypto.Address
	Scopes  []string
}

// HasScopes reports whether every required scope was granted.
func (p *Principal) HasScopes(required ...string) bool {
	if p == nil {
		return false
	}
	set := make(map[string]struct{}, len(p.Scopes))
	for _, scope := range p.Scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

type principalContextKey struct{}

// PrincipalFromContext extracts the authenticated principal from the request
// context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// Authenticator verifies bearer tokens before requests reach handlers.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

// NewAuthenticator constructs an authenticator from configuration.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secret := strings.TrimSpace(cfg.HMACSecret)
	if !cfg.Disabled && secret == "" {
		return nil, errors.New("auth: hmac secret required")
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 30 * time.Second
	}
	return &Authenticator{cfg: cfg, secret: []byte(secret), logger: logger}, nil
}

// Middleware authenticates the caller and enforces the required scopes.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil {
				writeError(w, http.StatusInternalServerError, "authentication unavailable")
				return
			}
			principal, status, msg := a.authenticate(r)
			if principal == nil {
				writeError(w, status, msg)
				return
			}
			if !a.cfg.Disabled && !principal.HasScopes(requiredScopes...) {
				writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) authenticate(r *http.Request) (*Principal, int, string) {
	if a.cfg.Disabled {
		raw := strings.TrimSpace(r.Header.Get(DevAccountHeader))
		if raw == "" {
			return nil, http.StatusUnauthorized, "missing " + DevAccountHeader + " header"
		}
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return nil, http.StatusUnauthorized, "invalid account"
		}
		return &Principal{Subject: addr}, 0, ""
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return nil, http.StatusUnauthorized, "missing bearer token"
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		a.logger.Debug("token validation failed", "error", err, logging.MaskField("token", tokenString))
		return nil, http.StatusUnauthorized, "invalid token"
	}
	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, http.StatusUnauthorized, "token subject required"
	}
	addr, err := crypto.DecodeAddress(subject)
	if err != nil {
		return nil, http.StatusUnauthorized, "token subject is not an account"
	}
	return &Principal{Subject: addr, Scopes: extractScopes(claims)}, 0, ""
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
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

// TokenRequest describes a bearer token to mint.
type TokenRequest struct {
	Subject  crypto.Address
	Scopes   []string
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      time.Time
}

// IssueToken signs an HS256 bearer token accepted by Authenticator.
func IssueToken(secret string, req TokenRequest) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("auth: hmac secret required")
	}
	if req.Subject.IsZero() {
		return "", errors.New("auth: subject required")
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.MapClaims{
		"sub":   req.Subject.String(),
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"scope": strings.Join(req.Scopes, " "),
	}
	if req.Issuer != "" {
		claims["iss"] = req.Issuer
	}
	if req.Audience != "" {
		claims["aud"] = req.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func extractScopes(claims jwt.MapClaims) []string {
	raw, ok := claims["scope"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
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
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
