package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/betting-service/dto"
	"github.com/radieske/objective-bet-platform/internal/betting-service/ledger"
	"github.com/radieske/objective-bet-platform/internal/betting-service/odds"
	"github.com/radieske/objective-bet-platform/internal/betting-service/repo"
	"github.com/radieske/objective-bet-platform/internal/betting-service/service"
	"github.com/radieske/objective-bet-platform/internal/shared/auth"
)

// Server expõe partidas, objetivos, apostas e o websocket de atualizações
type Server struct {
	log      *zap.Logger
	betting  *service.Betting
	roles    auth.RoleLookup
	ws       http.HandlerFunc
	validate *validator.Validate
}

// NewServer recebe o handler do websocket já configurado (ws.Hub.HandleWS);
// roles resolve users.role para as rotas /admin
func NewServer(log *zap.Logger, b *service.Betting, roles auth.RoleLookup, wsHandler http.HandlerFunc) *Server {
	return &Server{log: log, betting: b, roles: roles, ws: wsHandler, validate: validator.New()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(auth.Middleware(s.roles))

	if s.ws != nil {
		r.Get("/ws", s.ws)
	}

	r.Get("/matches", s.listMatches)   // ?status=
	r.Get("/matches/{id}", s.getMatch) // com objetivos
	r.Get("/matches/{id}/objectives", s.listObjectives)
	r.Get("/objectives/{id}/odds", s.objectiveOdds)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Post("/bets", s.placeBet)
		r.Get("/bets", s.myBets) // ?matchId=
		r.Get("/bets/{id}", s.getBet)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Post("/matches", s.createMatch)
		r.Put("/matches/{id}/status", s.updateMatchStatus)
		r.Post("/matches/{id}/players", s.addPlayer)
		r.Post("/matches/{id}/objectives", s.createObjective)
		r.Post("/objectives/{id}/complete", s.completeObjective)
		r.Get("/bets", s.listBets) // ?userId=&matchId=
		r.Post("/bets/{id}/resolve", s.resolveBet)
	})
	return r
}

// ---------- partidas e objetivos ----------

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	out, err := s.betting.ListMatches(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := s.betting.GetMatch(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) listObjectives(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := s.betting.ListObjectives(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) objectiveOdds(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := s.betting.ObjectiveOdds(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.OddsResponse{ObjectiveID: id, Odds: v})
}

func (s *Server) createMatch(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	admin, _ := auth.FromContext(r.Context())
	m, err := s.betting.CreateMatch(r.Context(), admin.UserID, service.CreateMatchInput{
		Title:       req.Title,
		Description: req.Description,
		GameCode:    req.GameCode,
		MaxPlayers:  req.MaxPlayers,
		RolloverPot: req.RolloverPot,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) updateMatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.UpdateMatchStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.betting.UpdateMatchStatus(r.Context(), id, req.Status)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) addPlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.AddPlayerRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.betting.AddPlayer(r.Context(), id, req.PlayerID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) createObjective(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.CreateObjectiveRequest
	if !s.decode(w, r, &req) {
		return
	}
	o, err := s.betting.CreateObjective(r.Context(), id, service.CreateObjectiveInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		BaseOdds:    req.BaseOdds,
		Parameters:  req.Parameters,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) completeObjective(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.CompleteObjectiveRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	o, err := s.betting.CompleteObjective(r.Context(), id, req.Winner)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ---------- apostas ----------

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, _ := auth.FromContext(r.Context())
	bet, err := s.betting.PlaceBet(r.Context(), service.PlaceBetInput{
		UserID:      id.UserID,
		MatchID:     req.MatchID,
		ObjectiveID: req.ObjectiveID,
		Amount:      req.Amount,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

func (s *Server) myBets(w http.ResponseWriter, r *http.Request) {
	matchID, ok := queryID(w, r, "matchId")
	if !ok {
		return
	}
	id, _ := auth.FromContext(r.Context())
	out, err := s.betting.ListBets(r.Context(), id.UserID, matchID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// getBet só mostra a aposta ao dono ou a um admin
func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	betID, ok := pathID(w, r)
	if !ok {
		return
	}
	id, _ := auth.FromContext(r.Context())
	bet, err := s.betting.GetBet(r.Context(), betID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if bet.UserID != id.UserID && !id.IsAdmin() {
		s.fail(w, repo.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	matchID, ok := queryID(w, r, "matchId")
	if !ok {
		return
	}
	out, err := s.betting.ListBets(r.Context(), r.URL.Query().Get("userId"), matchID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) resolveBet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.ResolveBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	bet, err := s.betting.ResolveBet(r.Context(), id, req.Status)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// ---------- helpers ----------

// pathID valida {id}; partidas, objetivos e apostas usam UUID
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, repo.ErrNotFound.Error())
		return "", false
	}
	return id, true
}

// queryID aceita filtro vazio; valor presente precisa ser UUID
func queryID(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return "", true
	}
	if _, err := uuid.Parse(v); err != nil {
		writeError(w, http.StatusBadRequest, key+" must be a uuid")
		return "", false
	}
	return v, true
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

// fail converte erros de domínio em status HTTP
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrBetOutOfRange),
		errors.Is(err, odds.ErrInvalidParameters):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, ledger.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrAlreadyProcessed),
		errors.Is(err, service.ErrMatchClosed),
		errors.Is(err, service.ErrObjectiveClosed),
		errors.Is(err, repo.ErrMatchFull),
		errors.Is(err, repo.ErrBetNotPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrLedgerUnavailable):
		s.log.Warn("bet debit unresolved", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, service.ErrLedgerUnavailable.Error())
	default:
		s.log.Error("betting request failed", zap.Error(err))
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
