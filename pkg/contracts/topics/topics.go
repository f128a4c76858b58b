package topics

const (
	// Bets
	BetPlaced = "bet_placed"

	// Ledger (depósitos, saques, débitos de aposta)
	LedgerEvents = "ledger_events"

	// DLQs
	BetPlacedDLQ = "bet_placed_dlq"
)
