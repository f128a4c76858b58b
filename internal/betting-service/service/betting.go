package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/betting-service/ledger"
	"github.com/radieske/objective-bet-platform/internal/betting-service/odds"
	"github.com/radieske/objective-bet-platform/internal/betting-service/repo"
	"github.com/radieske/objective-bet-platform/internal/shared/settings"
	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrBetOutOfRange   = errors.New("bet amount outside allowed range")
	ErrMatchClosed     = errors.New("match is not accepting bets")
	ErrObjectiveClosed = errors.New("objective already completed")

	// ErrLedgerUnavailable: o débito não teve resposta definitiva do ledger
	ErrLedgerUnavailable = errors.New("ledger unavailable, try again later")
)

// Store é o subconjunto de repo.Postgres usado pelo serviço
type Store interface {
	CreateMatch(ctx context.Context, m *repo.Match) error
	GetMatch(ctx context.Context, id string) (repo.Match, error)
	ListMatches(ctx context.Context, status string) ([]repo.Match, error)
	UpdateMatchStatus(ctx context.Context, id, status string) (repo.Match, error)
	AddPlayer(ctx context.Context, matchID, playerID string) (repo.Match, error)
	CreateObjective(ctx context.Context, o *repo.Objective) error
	GetObjective(ctx context.Context, id string) (repo.Objective, error)
	ListObjectives(ctx context.Context, matchID string) ([]repo.Objective, error)
	CompleteObjective(ctx context.Context, id, winner string) (repo.Objective, error)
	CreateBet(ctx context.Context, b *repo.Bet) error
	GetBet(ctx context.Context, id string) (repo.Bet, error)
	ResolveBet(ctx context.Context, id, status string) (repo.Bet, error)
	ListBets(ctx context.Context, userID, matchID string) ([]repo.Bet, error)
}

type Ledger interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (ledger.Balance, error)
	Void(ctx context.Context, userID, externalRef string) (ledger.Balance, error)
}

type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

type Broadcaster interface {
	PublishMatchUpdate(ctx context.Context, u events.MatchUpdate) error
}

type OddsCache interface {
	Get(ctx context.Context, objectiveID string) (int64, bool, error)
	Set(ctx context.Context, objectiveID string, odds int64) error
}

type SettingsReader interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Betting concentra as regras de partidas, objetivos e apostas
type Betting struct {
	Log       *zap.Logger
	Store     Store
	Ledger    Ledger
	Pub       Publisher
	Broadcast Broadcaster
	Odds      OddsCache
	Settings  SettingsReader

	// DebitRetries repete o débito com a mesma ref quando o ledger não responde
	DebitRetries int
	DebitBackoff time.Duration

	// callback opcional de métricas: result = "placed" | "rejected" | "cancelled" | "unavailable" | "error"
	OnBet func(result string)
}

// ---------- partidas ----------

type CreateMatchInput struct {
	Title       string
	Description string
	GameCode    string
	MaxPlayers  int
	RolloverPot decimal.Decimal
	StartDate   *time.Time
	EndDate     *time.Time
}

// CreateMatch cria a partida em upcoming, pote zerado e sem jogadores
func (b *Betting) CreateMatch(ctx context.Context, adminID string, in CreateMatchInput) (repo.Match, error) {
	if strings.TrimSpace(in.Title) == "" || in.MaxPlayers < 0 || in.RolloverPot.IsNegative() {
		return repo.Match{}, ErrInvalidInput
	}
	if in.MaxPlayers == 0 {
		in.MaxPlayers = 100
	}
	m := repo.Match{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		GameCode:    in.GameCode,
		MaxPlayers:  in.MaxPlayers,
		RolloverPot: in.RolloverPot,
		CreatedBy:   adminID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
	}
	if err := b.Store.CreateMatch(ctx, &m); err != nil {
		return repo.Match{}, err
	}
	b.Log.Info("match created", zap.String("match_id", m.ID), zap.String("admin_id", adminID))
	return m, nil
}

func (b *Betting) ListMatches(ctx context.Context, status string) ([]repo.Match, error) {
	if status != "" && !repo.ValidMatchStatus(status) {
		return nil, ErrInvalidInput
	}
	return b.Store.ListMatches(ctx, status)
}

// GetMatch devolve a partida com seus objetivos
func (b *Betting) GetMatch(ctx context.Context, id string) (repo.Match, error) {
	m, err := b.Store.GetMatch(ctx, id)
	if err != nil {
		return repo.Match{}, err
	}
	if m.Objectives, err = b.Store.ListObjectives(ctx, id); err != nil {
		return repo.Match{}, err
	}
	return m, nil
}

func (b *Betting) UpdateMatchStatus(ctx context.Context, id, status string) (repo.Match, error) {
	if !repo.ValidMatchStatus(status) {
		return repo.Match{}, ErrInvalidInput
	}
	m, err := b.Store.UpdateMatchStatus(ctx, id, status)
	if err != nil {
		return repo.Match{}, err
	}
	b.broadcast(ctx, events.MatchUpdate{MatchID: m.ID, Kind: "status", Status: m.Status, Pot: m.Pot})
	return m, nil
}

func (b *Betting) AddPlayer(ctx context.Context, matchID, playerID string) (repo.Match, error) {
	if strings.TrimSpace(playerID) == "" {
		return repo.Match{}, ErrInvalidInput
	}
	return b.Store.AddPlayer(ctx, matchID, strings.TrimSpace(playerID))
}

// ---------- objetivos ----------

type CreateObjectiveInput struct {
	Title       string
	Description string
	Type        string
	BaseOdds    int64
	Parameters  odds.Parameters
}

// CreateObjective calcula a odd no momento da criação; baseOdds zero usa a odd padrão das configurações
func (b *Betting) CreateObjective(ctx context.Context, matchID string, in CreateObjectiveInput) (repo.Objective, error) {
	if strings.TrimSpace(in.Title) == "" {
		return repo.Objective{}, ErrInvalidInput
	}
	if in.Type == "" {
		in.Type = "custom"
	}
	if !slices.Contains(repo.ObjectiveTypes, in.Type) {
		return repo.Objective{}, ErrInvalidInput
	}
	if err := odds.ValidateParameters(in.BaseOdds, in.Parameters); err != nil {
		return repo.Objective{}, err
	}
	if _, err := b.Store.GetMatch(ctx, matchID); err != nil {
		return repo.Objective{}, err
	}
	if in.BaseOdds == 0 {
		st, err := b.Settings.Get(ctx)
		if err != nil {
			return repo.Objective{}, err
		}
		in.BaseOdds = st.DefaultOdds
	}

	o := repo.Objective{
		MatchID:        matchID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Type:           in.Type,
		Parameters:     in.Parameters,
		BaseOdds:       in.BaseOdds,
		CalculatedOdds: odds.CalculateOdds(in.BaseOdds, in.Parameters),
	}
	if err := b.Store.CreateObjective(ctx, &o); err != nil {
		return repo.Objective{}, err
	}
	b.cacheOdds(ctx, o.ID, o.CalculatedOdds)
	b.broadcast(ctx, events.MatchUpdate{MatchID: matchID, Kind: "objective", ObjectiveID: o.ID, TotalBets: o.TotalBets})
	b.Log.Info("objective created",
		zap.String("objective_id", o.ID), zap.String("match_id", matchID), zap.Int64("odds", o.CalculatedOdds))
	return o, nil
}

func (b *Betting) ListObjectives(ctx context.Context, matchID string) ([]repo.Objective, error) {
	return b.Store.ListObjectives(ctx, matchID)
}

// ObjectiveOdds devolve a odd atual do objetivo (cache Redis, depois Postgres)
func (b *Betting) ObjectiveOdds(ctx context.Context, objectiveID string) (int64, error) {
	o, err := b.Store.GetObjective(ctx, objectiveID)
	if err != nil {
		return 0, err
	}
	return b.currentOdds(ctx, o), nil
}

func (b *Betting) CompleteObjective(ctx context.Context, id, winner string) (repo.Objective, error) {
	o, err := b.Store.CompleteObjective(ctx, id, strings.TrimSpace(winner))
	if err != nil {
		return repo.Objective{}, err
	}
	b.broadcast(ctx, events.MatchUpdate{MatchID: o.MatchID, Kind: "objective", ObjectiveID: o.ID, TotalBets: o.TotalBets})
	return o, nil
}

// ---------- apostas ----------

type PlaceBetInput struct {
	UserID      string
	MatchID     string
	ObjectiveID string
	Amount      decimal.Decimal
}

// PlaceBet grava a aposta pending, debita o ledger (ref "bet:{id}") e publica bet_placed.
// Recusa definitiva do ledger cancela a aposta. Sem resposta, o débito é repetido
// com a mesma ref e depois anulado via void; se nem o void responder a aposta
// continua pending para conferência manual.
func (b *Betting) PlaceBet(ctx context.Context, in PlaceBetInput) (repo.Bet, error) {
	bet, err := b.placeBet(ctx, in)
	switch {
	case err == nil:
		b.observe("placed")
	case definitiveDebitError(err):
		b.observe("cancelled")
	case errors.Is(err, ErrLedgerUnavailable):
		b.observe("unavailable")
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrBetOutOfRange), errors.Is(err, ErrMatchClosed),
		errors.Is(err, ErrObjectiveClosed), errors.Is(err, ErrInvalidInput), errors.Is(err, repo.ErrNotFound):
		b.observe("rejected")
	default:
		b.observe("error")
	}
	return bet, err
}

func (b *Betting) placeBet(ctx context.Context, in PlaceBetInput) (repo.Bet, error) {
	if in.UserID == "" || in.MatchID == "" || in.ObjectiveID == "" {
		return repo.Bet{}, ErrInvalidInput
	}
	if !in.Amount.IsPositive() {
		return repo.Bet{}, ErrInvalidAmount
	}
	st, err := b.Settings.Get(ctx)
	if err != nil {
		return repo.Bet{}, err
	}
	if in.Amount.LessThan(st.MinBetAmount) || in.Amount.GreaterThan(st.MaxBetAmount) {
		return repo.Bet{}, fmt.Errorf("%w: %s..%s", ErrBetOutOfRange, st.MinBetAmount, st.MaxBetAmount)
	}

	m, err := b.Store.GetMatch(ctx, in.MatchID)
	if err != nil {
		return repo.Bet{}, err
	}
	if m.Status != repo.MatchOpen && m.Status != repo.MatchUpcoming {
		return repo.Bet{}, ErrMatchClosed
	}
	o, err := b.Store.GetObjective(ctx, in.ObjectiveID)
	if err != nil {
		return repo.Bet{}, err
	}
	if o.MatchID != m.ID {
		return repo.Bet{}, repo.ErrNotFound
	}
	if o.Completed {
		return repo.Bet{}, ErrObjectiveClosed
	}

	currentOdds := b.currentOdds(ctx, o)
	bet := repo.Bet{
		UserID:          in.UserID,
		MatchID:         m.ID,
		ObjectiveID:     o.ID,
		Amount:          in.Amount,
		Odds:            currentOdds,
		PotentialPayout: odds.CalculatePayout(in.Amount, currentOdds),
	}
	if err := b.Store.CreateBet(ctx, &bet); err != nil {
		return repo.Bet{}, err
	}

	ref := "bet:" + bet.ID
	if err := b.debit(ctx, bet, ref); err != nil {
		return repo.Bet{}, err
	}

	if err := b.Pub.PublishBetPlaced(ctx, events.BetPlaced{
		BetID:           bet.ID,
		UserID:          bet.UserID,
		MatchID:         bet.MatchID,
		ObjectiveID:     bet.ObjectiveID,
		Amount:          bet.Amount,
		Odds:            bet.Odds,
		PotentialPayout: bet.PotentialPayout,
		LedgerRef:       ref,
	}); err != nil {
		// a reconciliação do worker corrige total_bets se o evento se perder
		b.Log.Error("bet_placed publish failed", zap.String("bet_id", bet.ID), zap.Error(err))
	}
	b.Log.Info("bet placed",
		zap.String("bet_id", bet.ID), zap.String("user_id", bet.UserID),
		zap.String("amount", bet.Amount.String()), zap.Int64("odds", bet.Odds))
	return bet, nil
}

// debit aplica o débito da aposta. Erro definitivo cancela a aposta; timeout ou
// 5xx esgotados viram void da ref e ErrLedgerUnavailable.
func (b *Betting) debit(ctx context.Context, bet repo.Bet, ref string) error {
	_, err := b.Ledger.Debit(ctx, bet.UserID, bet.Amount, ref)
	for i := 0; err != nil && !definitiveDebitError(err) && i < b.DebitRetries && ctx.Err() == nil; i++ {
		b.Log.Warn("bet debit failed, retrying", zap.String("bet_id", bet.ID), zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(i+1) * b.DebitBackoff):
			_, err = b.Ledger.Debit(ctx, bet.UserID, bet.Amount, ref)
		}
	}
	if err == nil {
		return nil
	}

	// a aposta é resolvida mesmo se o cliente desistiu da requisição
	bg := context.WithoutCancel(ctx)
	if definitiveDebitError(err) {
		b.Log.Warn("bet debit refused, cancelling", zap.String("bet_id", bet.ID), zap.Error(err))
		b.cancelBet(bg, bet.ID)
		return err
	}

	if _, verr := b.Ledger.Void(bg, bet.UserID, ref); verr != nil {
		b.Log.Error("bet debit outcome unknown, left pending",
			zap.String("bet_id", bet.ID), zap.String("ref", ref), zap.NamedError("debit_error", err), zap.Error(verr))
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	b.Log.Warn("bet debit voided, cancelling", zap.String("bet_id", bet.ID), zap.Error(err))
	b.cancelBet(bg, bet.ID)
	return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}

func (b *Betting) cancelBet(ctx context.Context, id string) {
	if _, err := b.Store.ResolveBet(ctx, id, repo.BetCancelled); err != nil {
		b.Log.Error("bet cancel failed", zap.String("bet_id", id), zap.Error(err))
	}
}

// definitiveDebitError: o ledger recusou o débito e nada foi aplicado
func definitiveDebitError(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientFunds) ||
		errors.Is(err, ledger.ErrUserNotFound) ||
		errors.Is(err, ledger.ErrAlreadyProcessed)
}

func (b *Betting) GetBet(ctx context.Context, id string) (repo.Bet, error) {
	return b.Store.GetBet(ctx, id)
}

func (b *Betting) ListBets(ctx context.Context, userID, matchID string) ([]repo.Bet, error) {
	return b.Store.ListBets(ctx, userID, matchID)
}

// ResolveBet só muda o status; não há liquidação de pagamento
func (b *Betting) ResolveBet(ctx context.Context, id, status string) (repo.Bet, error) {
	switch status {
	case repo.BetWon, repo.BetLost, repo.BetCancelled:
	default:
		return repo.Bet{}, ErrInvalidInput
	}
	bet, err := b.Store.ResolveBet(ctx, id, status)
	if err != nil {
		return repo.Bet{}, err
	}
	b.Log.Info("bet resolved", zap.String("bet_id", id), zap.String("status", status))
	return bet, nil
}

// ---------- helpers ----------

// currentOdds lê do cache e cai para a odd persistida no objetivo
func (b *Betting) currentOdds(ctx context.Context, o repo.Objective) int64 {
	if b.Odds != nil {
		if v, ok, err := b.Odds.Get(ctx, o.ID); err == nil && ok {
			return v
		} else if err != nil {
			b.Log.Warn("odds cache read failed", zap.String("objective_id", o.ID), zap.Error(err))
		}
	}
	b.cacheOdds(ctx, o.ID, o.CalculatedOdds)
	return o.CalculatedOdds
}

func (b *Betting) cacheOdds(ctx context.Context, objectiveID string, v int64) {
	if b.Odds == nil {
		return
	}
	if err := b.Odds.Set(ctx, objectiveID, v); err != nil {
		b.Log.Warn("odds cache write failed", zap.String("objective_id", objectiveID), zap.Error(err))
	}
}

func (b *Betting) broadcast(ctx context.Context, u events.MatchUpdate) {
	if b.Broadcast == nil {
		return
	}
	u.UpdatedAt = time.Now().UTC()
	if err := b.Broadcast.PublishMatchUpdate(ctx, u); err != nil {
		b.Log.Warn("match update publish failed", zap.String("match_id", u.MatchID), zap.Error(err))
	}
}

func (b *Betting) observe(result string) {
	if b.OnBet != nil {
		b.OnBet(result)
	}
}
