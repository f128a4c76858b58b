package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/ledger-service/dto"
	"github.com/radieske/objective-bet-platform/internal/ledger-service/repo"
	"github.com/radieske/objective-bet-platform/internal/ledger-service/service"
	"github.com/radieske/objective-bet-platform/internal/shared/auth"
	"github.com/radieske/objective-bet-platform/internal/shared/settings"
)

// SettingsStore lê e grava as configurações administrativas
type SettingsStore interface {
	Get(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, in settings.Settings, updatedBy string) (settings.Settings, error)
}

// Server expõe a API do ledger (usuário, admin e rotas internas)
type Server struct {
	log           *zap.Logger
	ledger        *service.Ledger
	settings      SettingsStore
	roles         auth.RoleLookup
	internalToken string
	validate      *validator.Validate
}

// NewServer: roles resolve o papel do usuário; internalToken protege /ledger/debit|credit|void
func NewServer(log *zap.Logger, l *service.Ledger, s SettingsStore, roles auth.RoleLookup, internalToken string) *Server {
	return &Server{log: log, ledger: l, settings: s, roles: roles, internalToken: internalToken, validate: validator.New()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(auth.Middleware(s.roles))

	r.Route("/ledger", func(r chi.Router) {
		r.Get("/settings", s.getSettings) // público: endereço de depósito e limites

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.Get("/me", s.me)
			r.Get("/deposits", s.myDeposits)
			r.Post("/deposits", s.submitDeposit)
			r.Get("/withdrawals", s.myWithdrawals)
			r.Post("/withdrawals", s.requestWithdrawal)
		})

		// chamadas serviço-a-serviço (betting-service); bloqueadas no gateway
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireInternal(s.internalToken))
			r.Post("/debit", s.debit)
			r.Post("/credit", s.credit)
			r.Post("/void", s.void)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Get("/deposits", s.listDeposits)
		r.Post("/deposits/{id}/approve", s.approveDeposit)
		r.Post("/deposits/{id}/reject", s.rejectDeposit)
		r.Get("/withdrawals", s.listWithdrawals)
		r.Post("/withdrawals/{id}/approve", s.approveWithdrawal)
		r.Post("/withdrawals/{id}/reject", s.rejectWithdrawal)
		r.Put("/settings", s.updateSettings)
	})
	return r
}

// ---------- usuário ----------

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	u, err := s.ledger.Me(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) myDeposits(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	out, err := s.ledger.ListDeposits(r.Context(), id.UserID, r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) submitDeposit(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitDepositRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, _ := auth.FromContext(r.Context())
	t, err := s.ledger.SubmitDeposit(r.Context(), id, req.TxHash)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.DepositResponse{Transaction: t})
}

func (s *Server) myWithdrawals(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	out, err := s.ledger.ListWithdrawals(r.Context(), id.UserID, r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateWithdrawalRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, _ := auth.FromContext(r.Context())
	wr, err := s.ledger.RequestWithdrawal(r.Context(), id, req.Amount, req.CryptoAddress)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.WithdrawalResponse{Withdrawal: wr})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Get(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ---------- interno ----------

func (s *Server) debit(w http.ResponseWriter, r *http.Request) {
	s.movement(w, r, s.ledger.Debit)
}

func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	s.movement(w, r, s.ledger.Credit)
}

func (s *Server) movement(w http.ResponseWriter, r *http.Request,
	apply func(context.Context, string, decimal.Decimal, string) (repo.BalanceChange, error)) {
	var req dto.MovementRequest
	if !s.decode(w, r, &req) {
		return
	}
	change, err := apply(r.Context(), req.UserID, req.Amount, req.ExternalRef)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		UserID: req.UserID, Balance: change.BalanceAfter, Replayed: change.Replayed,
	})
}

func (s *Server) void(w http.ResponseWriter, r *http.Request) {
	var req dto.VoidRequest
	if !s.decode(w, r, &req) {
		return
	}
	change, err := s.ledger.Void(r.Context(), req.UserID, req.ExternalRef)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		UserID: req.UserID, Balance: change.BalanceAfter, Replayed: change.Replayed,
	})
}

// ---------- admin ----------

func (s *Server) listDeposits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.ledger.ListDeposits(r.Context(), q.Get("userId"), q.Get("status"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) approveDeposit(w http.ResponseWriter, r *http.Request) {
	var req dto.ApproveDepositRequest
	if !s.decode(w, r, &req) {
		return
	}
	txID, ok := pathID(w, r)
	if !ok {
		return
	}
	admin, _ := auth.FromContext(r.Context())
	t, change, err := s.ledger.ApproveDeposit(r.Context(), admin.UserID, txID, req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.DepositResponse{Transaction: t, Balance: &change.BalanceAfter})
}

func (s *Server) rejectDeposit(w http.ResponseWriter, r *http.Request) {
	var req dto.RejectRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	txID, ok := pathID(w, r)
	if !ok {
		return
	}
	admin, _ := auth.FromContext(r.Context())
	t, err := s.ledger.RejectDeposit(r.Context(), admin.UserID, txID, req.Notes)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.DepositResponse{Transaction: t})
}

func (s *Server) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.ledger.ListWithdrawals(r.Context(), q.Get("userId"), q.Get("status"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) approveWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.ApproveWithdrawalRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	wID, ok := pathID(w, r)
	if !ok {
		return
	}
	admin, _ := auth.FromContext(r.Context())
	wr, change, err := s.ledger.ApproveWithdrawal(r.Context(), admin.UserID, wID, req.TxHash)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WithdrawalResponse{Withdrawal: wr, Balance: &change.BalanceAfter})
}

func (s *Server) rejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.RejectRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	wID, ok := pathID(w, r)
	if !ok {
		return
	}
	admin, _ := auth.FromContext(r.Context())
	wr, err := s.ledger.RejectWithdrawal(r.Context(), admin.UserID, wID, req.Notes)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WithdrawalResponse{Withdrawal: wr})
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateSettingsRequest
	if !s.decode(w, r, &req) {
		return
	}
	admin, _ := auth.FromContext(r.Context())
	st, err := s.settings.Update(r.Context(), settings.Settings{
		BitcoinDepositAddress: req.BitcoinDepositAddress,
		DefaultOdds:           req.DefaultOdds,
		MinBetAmount:          req.MinBetAmount,
		MaxBetAmount:          req.MaxBetAmount,
		MinWithdrawalAmount:   req.MinWithdrawalAmount,
	}, admin.UserID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("settings updated", zap.String("admin_id", admin.UserID))
	writeJSON(w, http.StatusOK, st)
}

// ---------- helpers ----------

// pathID valida {id}; ids de transação e saque são UUID
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, repo.ErrNotFound.Error())
		return "", false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return false
	}
	return true
}

// decodeOptional aceita corpo vazio (ex.: rejeição sem notas)
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return s.decode(w, r, v)
}

// fail converte erros de domínio em status HTTP
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrBelowMinimum),
		errors.Is(err, settings.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repo.ErrUserNotFound):
		writeCodedError(w, http.StatusNotFound, err.Error(), dto.CodeUserNotFound)
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repo.ErrInsufficientFunds):
		writeCodedError(w, http.StatusConflict, err.Error(), dto.CodeInsufficientFunds)
	case errors.Is(err, repo.ErrAlreadyProcessed):
		writeCodedError(w, http.StatusConflict, err.Error(), dto.CodeAlreadyProcessed)
	case errors.Is(err, repo.ErrDuplicateTxHash):
		writeCodedError(w, http.StatusConflict, err.Error(), dto.CodeDuplicateTxHash)
	case errors.Is(err, service.ErrDepositNotEnabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("ledger request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

func writeCodedError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Code: code})
}
