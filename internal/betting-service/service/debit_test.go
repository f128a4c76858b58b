package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/objective-bet-platform/internal/betting-service/ledger"
	"github.com/radieske/objective-bet-platform/internal/betting-service/repo"
	"github.com/radieske/objective-bet-platform/internal/shared/auth"
)

const clientTimeout = 50 * time.Millisecond

// slowLedger imita o ledger-service: aplica o débito e, nas primeiras slowDebits
// chamadas, segura a resposta além do timeout do cliente
type slowLedger struct {
	mu         sync.Mutex
	balance    decimal.Decimal
	applied    map[string]decimal.Decimal
	debitCalls int
	slowDebits int
	voidStatus int
}

func newSlowLedger(slowDebits int) *slowLedger {
	return &slowLedger{balance: decimal.NewFromInt(100), applied: map[string]decimal.Decimal{}, slowDebits: slowDebits}
}

func (l *slowLedger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(auth.HeaderInternalToken) != "tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req struct {
		UserID      string          `json:"userId"`
		Amount      decimal.Decimal `json:"amount"`
		ExternalRef string          `json:"externalRef"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.URL.Path {
	case "/ledger/debit":
		l.mu.Lock()
		l.debitCalls++
		slow := l.debitCalls <= l.slowDebits
		if _, ok := l.applied[req.ExternalRef]; !ok && req.Amount.GreaterThan(l.balance) {
			l.mu.Unlock()
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"insufficient funds","code":"insufficient_funds"}`))
			return
		}
		if _, ok := l.applied[req.ExternalRef]; !ok {
			l.applied[req.ExternalRef] = req.Amount.Neg()
			l.balance = l.balance.Sub(req.Amount)
		}
		bal := l.balance
		l.mu.Unlock()
		if slow {
			select {
			case <-r.Context().Done():
			case <-time.After(4 * clientTimeout):
			}
			return
		}
		_ = json.NewEncoder(w).Encode(ledger.Balance{UserID: req.UserID, Balance: bal})
	case "/ledger/void":
		if l.voidStatus != 0 {
			w.WriteHeader(l.voidStatus)
			return
		}
		l.mu.Lock()
		voidRef := "void:" + req.ExternalRef
		if _, done := l.applied[voidRef]; !done {
			delta, ok := l.applied[req.ExternalRef]
			if !ok {
				l.applied[req.ExternalRef] = decimal.Zero
			}
			l.applied[voidRef] = delta.Neg()
			l.balance = l.balance.Sub(delta)
		}
		bal := l.balance
		l.mu.Unlock()
		_ = json.NewEncoder(w).Encode(ledger.Balance{UserID: req.UserID, Balance: bal})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (l *slowLedger) state() (decimal.Decimal, int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, l.debitCalls, len(l.applied)
}

func withSlowLedger(t *testing.T, l *slowLedger) fixture {
	t.Helper()
	srv := httptest.NewServer(l)
	t.Cleanup(srv.Close)

	f := newFixture(t)
	f.svc.Ledger = ledger.New(srv.URL, "tok", clientTimeout)
	f.svc.DebitRetries = 1
	f.svc.DebitBackoff = time.Millisecond
	return f
}

func TestPlaceBet_DebitTimeoutVoidsAndCancels(t *testing.T) {
	l := newSlowLedger(10)
	f := withSlowLedger(t, l)
	m, o := f.openMatchWithObjective(t)
	var results []string
	f.svc.OnBet = func(r string) { results = append(results, r) }

	_, err := f.svc.PlaceBet(context.Background(), PlaceBetInput{
		UserID: "alice", MatchID: m.ID, ObjectiveID: o.ID, Amount: decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Equal(t, []string{"unavailable"}, results)
	assert.Empty(t, f.cap.bets)

	balance, calls, _ := l.state()
	assert.Equal(t, 2, calls)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "net debit must be zero, got %s", balance)

	bets, _ := f.store.ListBets(context.Background(), "alice", "")
	require.Len(t, bets, 1)
	assert.Equal(t, repo.BetCancelled, bets[0].Status)
}

func TestPlaceBet_DebitRetryReplaysSameRef(t *testing.T) {
	l := newSlowLedger(1)
	f := withSlowLedger(t, l)
	m, o := f.openMatchWithObjective(t)

	bet, err := f.svc.PlaceBet(context.Background(), PlaceBetInput{
		UserID: "alice", MatchID: m.ID, ObjectiveID: o.ID, Amount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, repo.BetPending, bet.Status)
	require.Len(t, f.cap.bets, 1)

	balance, calls, refs := l.state()
	assert.Equal(t, 2, calls)
	assert.True(t, balance.Equal(decimal.NewFromInt(90)), "debited once, got %s", balance)
	assert.Equal(t, 1, refs)
}

func TestPlaceBet_VoidFailureLeavesBetPending(t *testing.T) {
	l := newSlowLedger(10)
	l.voidStatus = http.StatusBadGateway
	f := withSlowLedger(t, l)
	m, o := f.openMatchWithObjective(t)

	_, err := f.svc.PlaceBet(context.Background(), PlaceBetInput{
		UserID: "alice", MatchID: m.ID, ObjectiveID: o.ID, Amount: decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Empty(t, f.cap.bets)

	bets, _ := f.store.ListBets(context.Background(), "alice", "")
	require.Len(t, bets, 1)
	assert.Equal(t, repo.BetPending, bets[0].Status)
}

func TestPlaceBet_RefusedDebitIsNotRetried(t *testing.T) {
	l := newSlowLedger(0)
	l.balance = decimal.NewFromInt(5)
	f := withSlowLedger(t, l)
	m, o := f.openMatchWithObjective(t)

	_, err := f.svc.PlaceBet(context.Background(), PlaceBetInput{
		UserID: "alice", MatchID: m.ID, ObjectiveID: o.ID, Amount: decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	balance, calls, _ := l.state()
	assert.Equal(t, 1, calls)
	assert.True(t, balance.Equal(decimal.NewFromInt(5)))

	bets, _ := f.store.ListBets(context.Background(), "alice", "")
	require.Len(t, bets, 1)
	assert.Equal(t, repo.BetCancelled, bets[0].Status)
}
