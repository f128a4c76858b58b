package repo

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/objective-bet-platform/internal/betting-service/odds"
)

// Status de partidas
const (
	MatchUpcoming   = "upcoming"
	MatchOpen       = "open"
	MatchInProgress = "in-progress"
	MatchCompleted  = "completed"
	MatchCancelled  = "cancelled"
)

// Status de apostas
const (
	BetPending   = "pending"
	BetWon       = "won"
	BetLost      = "lost"
	BetCancelled = "cancelled"
)

// Tipos de objetivo
var ObjectiveTypes = []string{"weapon", "item", "location", "elimination", "survival", "custom"}

// ValidMatchStatus informa se s é um status de partida conhecido
func ValidMatchStatus(s string) bool {
	switch s {
	case MatchUpcoming, MatchOpen, MatchInProgress, MatchCompleted, MatchCancelled:
		return true
	}
	return false
}

// Match é uma partida do jogo com pote e jogadores inscritos
type Match struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	GameCode       string          `json:"gameCode"`
	Status         string          `json:"status"`
	MaxPlayers     int             `json:"maxPlayers"`
	CurrentPlayers int             `json:"currentPlayers"`
	PlayerIDs      []string        `json:"playerIds"`
	Pot            decimal.Decimal `json:"pot"`
	RolloverPot    decimal.Decimal `json:"rolloverPot"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	StartDate      *time.Time      `json:"startDate,omitempty"`
	EndDate        *time.Time      `json:"endDate,omitempty"`
	Objectives     []Objective     `json:"objectives,omitempty"`
}

// Objective é um resultado apostável dentro de uma partida
type Objective struct {
	ID             string          `json:"id"`
	MatchID        string          `json:"matchId"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	Parameters     odds.Parameters `json:"parameters"`
	BaseOdds       int64           `json:"baseOdds"`
	CalculatedOdds int64           `json:"calculatedOdds"`
	TotalBets      decimal.Decimal `json:"totalBets"`
	Winner         string          `json:"winner,omitempty"`
	Completed      bool            `json:"completed"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Bet é a aposta de um usuário em um objetivo
type Bet struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	MatchID         string          `json:"matchId"`
	ObjectiveID     string          `json:"objectiveId"`
	Amount          decimal.Decimal `json:"amount"`
	Odds            int64           `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potentialPayout"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
}
