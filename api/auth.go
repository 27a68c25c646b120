package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/brokerage-engine/engine"
)

// RoleSuperuser in a token's role claim lifts the company filter.
const RoleSuperuser = "superuser"

// Claims are the token claims the API trusts. Tokens are issued elsewhere;
// this package only verifies them.
type Claims struct {
	jwt.RegisteredClaims
	CompanyID string `json:"company_id,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Tenant derives the request's tenant scope from the claims.
func (c *Claims) Tenant() engine.Tenant {
	if c.Role == RoleSuperuser {
		return engine.Tenant{CompanyID: c.CompanyID, Bypass: true}
	}
	return engine.Tenant{CompanyID: c.CompanyID}
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// ValidateToken validates a token
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

type actorKey struct{}

// Middleware verifies the bearer token and attaches the tenant scope to the
// request context. The scope ends with the request.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header", nil)
			return
		}

		claims, err := a.ValidateToken(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token", err)
			return
		}

		tenant := claims.Tenant()
		if !tenant.Bypass && tenant.CompanyID == "" {
			writeError(w, http.StatusUnauthorized, "token carries no company", nil)
			return
		}

		ctx := engine.WithTenant(r.Context(), tenant)
		ctx = context.WithValue(ctx, actorKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom returns the authenticated subject, recorded as processedBy.
func actorFrom(ctx context.Context) string {
	s, _ := ctx.Value(actorKey{}).(string)
	return s
}
