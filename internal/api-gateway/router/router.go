// Package router encaminha /ledger e /admin financeiro ao ledger-service
// e o restante (partidas, apostas, websocket) ao betting-service.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Targets struct {
	LedgerURL  string
	BettingURL string
}

var errNoSecret = errors.New("gateway jwt secret is empty")

func proxy(log *zap.Logger, name, to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s url %q", name, to)
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("upstream failed", zap.String("upstream", name), zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}
	return rp, nil
}

// NewRouter monta o roteamento do gateway. jwtSecret valida o Bearer token do usuário.
// /ledger/debit, /ledger/credit e /ledger/void são chamadas internas entre serviços e não passam por aqui.
func NewRouter(log *zap.Logger, t Targets, allowedOrigins []string, jwtSecret string) (http.Handler, error) {
	if jwtSecret == "" {
		return nil, errNoSecret
	}
	ledger, err := proxy(log, "ledger", t.LedgerURL)
	if err != nil {
		return nil, err
	}
	betting, err := proxy(log, "betting", t.BettingURL)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(identity(log, []byte(jwtSecret)))

	internal := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }
	r.Handle("/ledger/debit", http.HandlerFunc(internal))
	r.Handle("/ledger/credit", http.HandlerFunc(internal))
	r.Handle("/ledger/void", http.HandlerFunc(internal))
	r.Handle("/ledger/*", ledger)
	r.Handle("/admin/deposits", ledger)
	r.Handle("/admin/deposits/*", ledger)
	r.Handle("/admin/withdrawals", ledger)
	r.Handle("/admin/withdrawals/*", ledger)
	r.Handle("/admin/settings", ledger)

	r.Handle("/admin/*", betting)
	r.Handle("/matches", betting)
	r.Handle("/matches/*", betting)
	r.Handle("/bets", betting)
	r.Handle("/bets/*", betting)
	r.Handle("/objectives/*", betting)
	r.Handle("/ws", betting)

	return r, nil
}
