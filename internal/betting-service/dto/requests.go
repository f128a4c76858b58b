package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/objective-bet-platform/internal/betting-service/odds"
)

type CreateMatchRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	GameCode    string          `json:"gameCode" validate:"max=64"`
	MaxPlayers  int             `json:"maxPlayers" validate:"gte=0,lte=1000"`
	RolloverPot decimal.Decimal `json:"rolloverPot"`
	StartDate   *time.Time      `json:"startDate"`
	EndDate     *time.Time      `json:"endDate"`
}

type UpdateMatchStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=upcoming open in-progress completed cancelled"`
}

type AddPlayerRequest struct {
	PlayerID string `json:"playerId" validate:"required,max=128"`
}

type CreateObjectiveRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Type        string          `json:"type" validate:"omitempty,oneof=weapon item location elimination survival custom"`
	BaseOdds    int64           `json:"baseOdds" validate:"gte=0,lte=1000000"`
	Parameters  odds.Parameters `json:"parameters"`
}

type CompleteObjectiveRequest struct {
	Winner string `json:"winner" validate:"max=128"`
}

type PlaceBetRequest struct {
	MatchID     string          `json:"matchId" validate:"required,uuid"`
	ObjectiveID string          `json:"objectiveId" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
}

type ResolveBetRequest struct {
	Status string `json:"status" validate:"required,oneof=won lost cancelled"`
}
