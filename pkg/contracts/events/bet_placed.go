package events

import "github.com/shopspring/decimal"

// Evento publicado no tópico "bet_placed" após o débito da aposta no ledger
type BetPlaced struct {
	BetID           string          `json:"bet_id"`
	UserID          string          `json:"user_id"`
	MatchID         string          `json:"match_id"`
	ObjectiveID     string          `json:"objective_id"`
	Amount          decimal.Decimal `json:"amount"`
	Odds            int64           `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	LedgerRef       string          `json:"ledger_ref"` // external_ref usado no débito do ledger
	TsUnixMs        int64           `json:"ts_unix_ms"`
}
