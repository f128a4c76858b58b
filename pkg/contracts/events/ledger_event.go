package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de movimentação publicados em "ledger_events"
const (
	LedgerDepositApproved     = "DEPOSIT_APPROVED"
	LedgerDepositRejected     = "DEPOSIT_REJECTED"
	LedgerWithdrawalCompleted = "WITHDRAWAL_COMPLETED"
	LedgerWithdrawalRejected  = "WITHDRAWAL_REJECTED"
	LedgerBetDebit            = "BET_DEBIT"
	LedgerCredit              = "CREDIT"
	LedgerVoid                = "VOID" // estorno de movimentação externa com resultado incerto
)

// LedgerEvent descreve uma mudança de saldo ou de status de pedido
type LedgerEvent struct {
	Type         string          `json:"type"`
	UserID       string          `json:"user_id"`
	RefID        string          `json:"ref_id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	ProcessedBy  string          `json:"processed_by,omitempty"`
	Ts           time.Time       `json:"ts"`
}
