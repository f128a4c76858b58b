package router

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/shared/auth"
)

// claims emitidas pelo serviço de autenticação hospedado (HS256)
type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// identity descarta qualquer header de identidade enviado pelo cliente e só
// repassa X-User-ID/X-User-Email derivados de um Bearer JWT válido.
// Sem token a requisição segue anônima; token inválido é 401.
func identity(log *zap.Logger, secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, hasToken := bearer(r.Header.Get("Authorization"))
			stripIdentity(r.Header)

			if hasToken {
				var c claims
				if _, err := parser.ParseWithClaims(raw, &c, keyFunc); err != nil || c.Subject == "" {
					log.Debug("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"invalid token"}` + "\n"))
					return
				}
				r.Header.Set(auth.HeaderUserID, c.Subject)
				if c.Email != "" {
					r.Header.Set(auth.HeaderUserEmail, c.Email)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// stripIdentity remove X-User-*, o token interno e o Authorization já consumido
func stripIdentity(h http.Header) {
	for k := range h {
		if strings.HasPrefix(strings.ToLower(k), strings.ToLower(auth.IdentityHeaderPrefix)) {
			h.Del(k)
		}
	}
	h.Del(auth.HeaderInternalToken)
	h.Del("Authorization")
}
