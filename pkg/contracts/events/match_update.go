package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchUpdate é o payload enviado via Redis Pub/Sub para o websocket do betting-service
type MatchUpdate struct {
	MatchID     string          `json:"match_id"`
	Kind        string          `json:"kind"` // "status" | "pot" | "objective"
	Status      string          `json:"status,omitempty"`
	Pot         decimal.Decimal `json:"pot"`
	ObjectiveID string          `json:"objective_id,omitempty"`
	TotalBets   decimal.Decimal `json:"total_bets"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
