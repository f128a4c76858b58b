package dto

import "github.com/shopspring/decimal"

// SubmitDepositRequest: usuário informa o hash da transação enviada ao endereço de depósito
type SubmitDepositRequest struct {
	TxHash string `json:"txHash" validate:"required,max=128"`
}

// ApproveDepositRequest: admin informa o valor efetivamente recebido
type ApproveDepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type RejectRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

type CreateWithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	CryptoAddress string          `json:"cryptoAddress" validate:"required,max=128"`
}

// ApproveWithdrawalRequest: admin informa o hash da transação de saída
type ApproveWithdrawalRequest struct {
	TxHash string `json:"txHash" validate:"max=128"`
}

// MovementRequest é usado por serviços internos (débito/crédito de apostas)
type MovementRequest struct {
	UserID      string          `json:"userId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	ExternalRef string          `json:"externalRef" validate:"required,max=128"`
}

// VoidRequest anula uma movimentação interna pela referência original
type VoidRequest struct {
	UserID      string `json:"userId" validate:"required"`
	ExternalRef string `json:"externalRef" validate:"required,max=123"`
}

type UpdateSettingsRequest struct {
	BitcoinDepositAddress string          `json:"bitcoinDepositAddress" validate:"max=128"`
	DefaultOdds           int64           `json:"defaultOdds" validate:"gt=0"`
	MinBetAmount          decimal.Decimal `json:"minBetAmount"`
	MaxBetAmount          decimal.Decimal `json:"maxBetAmount"`
	MinWithdrawalAmount   decimal.Decimal `json:"minWithdrawalAmount"`
}
