package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type ctxKey string

// CtxSubject carries the authenticated operator subject.
const CtxSubject ctxKey = "sub"

// JWTCfg holds operator authentication configuration
type JWTCfg struct {
	HS256Secret string // HMAC secret for HS256 tokens (control-secret)
	DevMode     bool   // Allow X-Debug-Sub header (DANGEROUS: only for local dev)
}

// Middleware guards the operator endpoints. Production requests carry a
// Bearer HS256 JWT; in dev mode an X-Debug-Sub header stands in when no
// token is sent. An empty HS256Secret leaves the control surface open,
// which is logged loudly at startup and meant for local development only.
func Middleware(cfg JWTCfg) func(http.Handler) http.Handler {
	if cfg.DevMode {
		log.Warn().Msg("SECURITY WARNING: DevMode enabled - X-Debug-Sub header will bypass JWT authentication")
	}
	if cfg.HS256Secret == "" {
		log.Warn().Msg("SECURITY WARNING: control-secret not set - operator endpoints are unauthenticated")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.HS256Secret == "" {
				next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), "anonymous")))
				return
			}

			tok := bearerToken(r)

			// The debug header only stands in when no token was sent; a
			// presented token always validates.
			if tok == "" && cfg.DevMode {
				if sub := r.Header.Get("X-Debug-Sub"); sub != "" {
					log.Debug().Str("sub", sub).Msg("using X-Debug-Sub header (dev mode)")
					next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), sub)))
					return
				}
			}

			sub, err := verifyToken(tok, cfg.HS256Secret)
			if err != nil {
				log.Warn().Err(err).Msg("operator auth failed")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), sub)))
		})
	}
}

// bearerToken pulls the token out of the Authorization header, or returns
// "" when the header is absent or carries another scheme.
func bearerToken(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return tok
	}
	return ""
}

// verifyToken validates an HS256 token and returns its subject claim.
func verifyToken(tok, secret string) (string, error) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !t.Valid {
		return "", jwt.ErrTokenUnverifiable
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", jwt.ErrTokenRequiredClaimMissing
	}
	return sub, nil
}

func withSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, CtxSubject, sub)
}

// Subject extracts the authenticated operator subject from request context.
// Returns empty string if not authenticated.
func Subject(ctx context.Context) string {
	if v := ctx.Value(CtxSubject); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
