package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/betting-service/ledger"
	"github.com/radieske/objective-bet-platform/internal/betting-service/repo"
	"github.com/radieske/objective-bet-platform/internal/betting-service/service"
	"github.com/radieske/objective-bet-platform/internal/shared/auth"
	"github.com/radieske/objective-bet-platform/internal/shared/settings"
	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

// stubStore cobre só o que as rotas testadas usam
type stubStore struct {
	service.Store
	match     repo.Match
	objective repo.Objective
	bets      map[string]repo.Bet
}

const (
	matchID     = "3f2b8c1e-6d4a-4e1b-9a7c-0b5d2e8f4a11"
	objectiveID = "9c1d7e2f-4b3a-4c5d-8e6f-1a2b3c4d5e6f"
	betID       = "5a6b7c8d-9e0f-4a1b-8c2d-3e4f5a6b7c8d"
	unknownID   = "00000000-0000-4000-8000-000000000000"
)

func newStub() *stubStore {
	return &stubStore{
		match:     repo.Match{ID: matchID, Title: "Friday Night Doom", Status: repo.MatchOpen},
		objective: repo.Objective{ID: objectiveID, MatchID: matchID, Title: "3 shotguns", BaseOdds: 100, CalculatedOdds: 130},
		bets:      map[string]repo.Bet{},
	}
}

func (s *stubStore) GetMatch(_ context.Context, id string) (repo.Match, error) {
	if id != s.match.ID {
		return repo.Match{}, repo.ErrNotFound
	}
	return s.match, nil
}

func (s *stubStore) ListObjectives(context.Context, string) ([]repo.Objective, error) {
	return []repo.Objective{s.objective}, nil
}

func (s *stubStore) GetObjective(_ context.Context, id string) (repo.Objective, error) {
	if id != s.objective.ID {
		return repo.Objective{}, repo.ErrNotFound
	}
	return s.objective, nil
}

func (s *stubStore) CreateBet(_ context.Context, b *repo.Bet) error {
	b.ID = betID
	b.Status = repo.BetPending
	s.bets[b.ID] = *b
	return nil
}

func (s *stubStore) GetBet(_ context.Context, id string) (repo.Bet, error) {
	b, ok := s.bets[id]
	if !ok {
		return repo.Bet{}, repo.ErrNotFound
	}
	return b, nil
}

func (s *stubStore) ResolveBet(_ context.Context, id, status string) (repo.Bet, error) {
	b, ok := s.bets[id]
	if !ok {
		return repo.Bet{}, repo.ErrNotFound
	}
	if b.Status != repo.BetPending {
		return repo.Bet{}, repo.ErrBetNotPending
	}
	b.Status = status
	s.bets[id] = b
	return b, nil
}

type stubLedger struct{ err error }

func (l stubLedger) Debit(context.Context, string, decimal.Decimal, string) (ledger.Balance, error) {
	return ledger.Balance{}, l.err
}

func (l stubLedger) Void(context.Context, string, string) (ledger.Balance, error) {
	return ledger.Balance{}, nil
}

// adminTable: só "root" é admin
type adminTable struct{}

func (adminTable) UserRole(_ context.Context, id string) (string, error) {
	if id == "root" {
		return auth.RoleAdmin, nil
	}
	return auth.RoleUser, nil
}

type nopPub struct{}

func (nopPub) PublishBetPlaced(context.Context, events.BetPlaced) error { return nil }

type staticSettings struct{}

func (staticSettings) Get(context.Context) (settings.Settings, error) { return settings.Defaults(), nil }

func newTestServer(st *stubStore, debitErr error) http.Handler {
	b := &service.Betting{
		Log:      zap.NewNop(),
		Store:    st,
		Ledger:   stubLedger{err: debitErr},
		Pub:      nopPub{},
		Settings: staticSettings{},
	}
	return NewServer(zap.NewNop(), b, adminTable{}, nil).Router()
}

// do envia a requisição; headers extras vêm em pares chave/valor
func do(h http.Handler, method, path, body, userID string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func betBody(match, objective, amount string) string {
	return `{"matchId":"` + match + `","objectiveId":"` + objective + `","amount":"` + amount + `"}`
}

func TestGetMatch_PublicWithObjectives(t *testing.T) {
	h := newTestServer(newStub(), nil)

	rec := do(h, http.MethodGet, "/matches/"+matchID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var m repo.Match
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	require.Len(t, m.Objectives, 1)
	assert.Equal(t, int64(130), m.Objectives[0].CalculatedOdds)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/matches/"+unknownID, "", "").Code)
}

func TestPlaceBet(t *testing.T) {
	st := newStub()
	h := newTestServer(st, nil)

	assert.Equal(t, http.StatusUnauthorized,
		do(h, http.MethodPost, "/bets", betBody(matchID, objectiveID, "10"), "", "").Code)

	rec := do(h, http.MethodPost, "/bets", betBody(matchID, objectiveID, "10"), "alice")
	require.Equal(t, http.StatusCreated, rec.Code)

	var bet repo.Bet
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&bet))
	assert.Equal(t, "alice", bet.UserID)
	assert.Equal(t, int64(130), bet.Odds)
	assert.Equal(t, "1300", bet.PotentialPayout.String())
}

func TestPlaceBet_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		debitErr error
		want     int
	}{
		{"insufficient funds", betBody(matchID, objectiveID, "10"), ledger.ErrInsufficientFunds, http.StatusConflict},
		{"above max", betBody(matchID, objectiveID, "5000"), nil, http.StatusBadRequest},
		{"zero amount", betBody(matchID, objectiveID, "0"), nil, http.StatusBadRequest},
		{"unknown objective", betBody(matchID, unknownID, "10"), nil, http.StatusNotFound},
		{"non-uuid objective", betBody(matchID, "nope", "10"), nil, http.StatusBadRequest},
		{"ledger unavailable", betBody(matchID, objectiveID, "10"), context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"ledger ref taken", betBody(matchID, objectiveID, "10"), ledger.ErrAlreadyProcessed, http.StatusConflict},
		{"missing match", `{"objectiveId":"`+objectiveID+`","amount":"10"}`, nil, http.StatusBadRequest},
		{"bad json", `{`, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(newStub(), tc.debitErr)
			assert.Equal(t, tc.want, do(h, http.MethodPost, "/bets", tc.body, "alice").Code)
		})
	}
}

func TestPlaceBet_ClosedMatch(t *testing.T) {
	st := newStub()
	st.match.Status = repo.MatchCompleted
	h := newTestServer(st, nil)

	rec := do(h, http.MethodPost, "/bets", betBody(matchID, objectiveID, "10"), "alice")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetBet_OnlyOwnerOrAdmin(t *testing.T) {
	st := newStub()
	st.bets[betID] = repo.Bet{ID: betID, UserID: "alice", Status: repo.BetPending}
	h := newTestServer(st, nil)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/bets/"+betID, "", "alice").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/bets/"+betID, "", "bob").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/bets/"+betID, "", "root").Code)
}

func TestAdminRoutes(t *testing.T) {
	st := newStub()
	st.bets[betID] = repo.Bet{ID: betID, UserID: "alice", Status: repo.BetPending}
	h := newTestServer(st, nil)

	assert.Equal(t, http.StatusForbidden,
		do(h, http.MethodPost, "/admin/bets/"+betID+"/resolve", `{"status":"won"}`, "alice").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(h, http.MethodPost, "/admin/bets/"+betID+"/resolve", `{"status":"paid"}`, "root").Code)
	assert.Equal(t, http.StatusOK,
		do(h, http.MethodPost, "/admin/bets/"+betID+"/resolve", `{"status":"won"}`, "root").Code)
	assert.Equal(t, http.StatusConflict,
		do(h, http.MethodPost, "/admin/bets/"+betID+"/resolve", `{"status":"lost"}`, "root").Code)
}

func TestObjectiveOdds(t *testing.T) {
	h := newTestServer(newStub(), nil)

	rec := do(h, http.MethodGet, "/objectives/"+objectiveID+"/odds", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"objectiveId":"`+objectiveID+`","odds":130}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/objectives/"+unknownID+"/odds", "", "").Code)
}

func TestNonUUIDPathIsNotFound(t *testing.T) {
	h := newTestServer(newStub(), nil)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/matches/zz", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/matches/zz/objectives", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/objectives/x/odds", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/bets/b1", "", "alice").Code)
	assert.Equal(t, http.StatusNotFound,
		do(h, http.MethodPost, "/admin/bets/b1/resolve", `{"status":"won"}`, "root").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/bets?matchId=m1", "", "alice").Code)
}

func TestAdminRoutes_IgnoreClientRoleHeader(t *testing.T) {
	st := newStub()
	st.bets[betID] = repo.Bet{ID: betID, UserID: "alice", Status: repo.BetPending}
	h := newTestServer(st, nil)

	rec := do(h, http.MethodPost, "/admin/bets/"+betID+"/resolve", `{"status":"won"}`, "alice", "X-User-Role", "admin")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, repo.BetPending, st.bets[betID].Status)
}
