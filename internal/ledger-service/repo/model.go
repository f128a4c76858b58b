package repo

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status de depósitos (transactions) e saques (withdrawal_requests)
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"

	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"

	RoleUser = "user"
)

// Tipos de referência gravados no balance_ledger
const (
	RefDeposit    = "deposit"
	RefWithdrawal = "withdrawal"
	RefExternal   = "external" // débitos/créditos pedidos por outros serviços (ex.: apostas)
)

// User é o dono do saldo
type User struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"displayName,omitempty"`
	Role        string          `json:"role"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Transaction é um pedido de depósito; amount começa em 0 até o admin aprovar
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	CryptoAddress string          `json:"cryptoAddress,omitempty"`
	TxHash        string          `json:"txHash,omitempty"`
	AdminNotes    string          `json:"adminNotes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	CompletedBy   string          `json:"completedBy,omitempty"`
}

// WithdrawalRequest é um pedido de saque do usuário
type WithdrawalRequest struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	CryptoAddress string          `json:"cryptoAddress"`
	Status        string          `json:"status"`
	AdminNotes    string          `json:"adminNotes,omitempty"`
	TxHash        string          `json:"txHash,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
	ProcessedBy   string          `json:"processedBy,omitempty"`
}

// BalanceChange é o resultado de uma mutação de saldo
type BalanceChange struct {
	UserID       string
	RefType      string
	RefID        string
	Delta        decimal.Decimal
	BalanceAfter decimal.Decimal
	Replayed     bool // true quando a referência já tinha sido aplicada
}
