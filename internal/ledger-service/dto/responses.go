package dto

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/objective-bet-platform/internal/ledger-service/repo"
)

type BalanceResponse struct {
	UserID   string          `json:"userId"`
	Balance  decimal.Decimal `json:"balance"`
	Replayed bool            `json:"replayed,omitempty"`
}

type DepositResponse struct {
	Transaction repo.Transaction `json:"transaction"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
}

type WithdrawalResponse struct {
	Withdrawal repo.WithdrawalRequest `json:"withdrawal"`
	Balance    *decimal.Decimal       `json:"balance,omitempty"`
}

// ErrorResponse.Code distingue conflitos para clientes internos
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const (
	CodeInsufficientFunds = "insufficient_funds"
	CodeAlreadyProcessed  = "already_processed"
	CodeDuplicateTxHash   = "duplicate_tx_hash"
	CodeUserNotFound      = "user_not_found"
)
