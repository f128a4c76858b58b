// Package auth lê a identidade que o gateway injeta nos headers da requisição
// depois de validar o token do serviço de autenticação hospedado.
// O papel (user/admin) vem sempre do cadastro do usuário, nunca do cliente.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

const (
	HeaderUserID        = "X-User-ID"
	HeaderUserEmail     = "X-User-Email"
	HeaderInternalToken = "X-Internal-Token"

	// IdentityHeaderPrefix cobre todos os headers de identidade que o gateway descarta na entrada
	IdentityHeaderPrefix = "X-User-"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity é o usuário autenticado da requisição
type Identity struct {
	UserID string
	Role   string
	Email  string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// RoleLookup lê users.role; usuário sem cadastro é RoleUser
type RoleLookup interface {
	UserRole(ctx context.Context, userID string) (string, error)
}

type ctxKey struct{}

// WithIdentity anexa a identidade ao contexto
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext retorna a identidade anexada por Middleware
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// Middleware extrai os headers de identidade para o contexto e resolve o papel no banco
func Middleware(roles RoleLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{
				UserID: r.Header.Get(HeaderUserID),
				Email:  r.Header.Get(HeaderUserEmail),
				Role:   RoleUser,
			}
			if id.UserID != "" && roles != nil {
				role, err := roles.UserRole(r.Context(), id.UserID)
				if err != nil {
					deny(w, http.StatusServiceUnavailable, "identity lookup failed")
					return
				}
				if role == RoleAdmin {
					id.Role = RoleAdmin
				}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireInternal libera só chamadas serviço-a-serviço com o token compartilhado.
// Token vazio fecha a rota.
func RequireInternal(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderInternalToken)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				deny(w, http.StatusUnauthorized, "internal only")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser responde 401 sem usuário identificado
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			deny(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin responde 403 para quem não é admin
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			deny(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		if !id.IsAdmin() {
			deny(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
