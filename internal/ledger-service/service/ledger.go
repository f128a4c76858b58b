package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/ledger-service/repo"
	"github.com/radieske/objective-bet-platform/internal/shared/auth"
	"github.com/radieske/objective-bet-platform/internal/shared/settings"
	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInvalidInput      = errors.New("invalid input")
	ErrBelowMinimum      = errors.New("amount below minimum withdrawal")
	ErrDepositNotEnabled = errors.New("deposit address not configured")
)

// Repo é o subconjunto de repo.Postgres usado pelo serviço
type Repo interface {
	GetOrCreateUser(ctx context.Context, userID, email string) (repo.User, error)
	CreateDeposit(ctx context.Context, userID, cryptoAddress, txHash string) (repo.Transaction, error)
	ApproveDeposit(ctx context.Context, txID string, amount decimal.Decimal, adminID string) (repo.Transaction, repo.BalanceChange, error)
	RejectDeposit(ctx context.Context, txID, notes, adminID string) (repo.Transaction, error)
	ListDeposits(ctx context.Context, userID, status string) ([]repo.Transaction, error)
	CreateWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, cryptoAddress string) (repo.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, id, txHash, adminID string) (repo.WithdrawalRequest, repo.BalanceChange, error)
	RejectWithdrawal(ctx context.Context, id, notes, adminID string) (repo.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, userID, status string) ([]repo.WithdrawalRequest, error)
	ApplyExternal(ctx context.Context, userID string, delta decimal.Decimal, externalRef string) (repo.BalanceChange, error)
	VoidExternal(ctx context.Context, userID, externalRef string) (repo.BalanceChange, error)
}

type Publisher interface {
	PublishLedgerEvent(ctx context.Context, e events.LedgerEvent) error
}

type SettingsReader interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Ledger aplica as regras de depósito, saque e movimentações externas.
// A atomicidade das aprovações fica no repo; aqui ficam validação, eventos e métricas.
type Ledger struct {
	Log      *zap.Logger
	Repo     Repo
	Pub      Publisher
	Settings SettingsReader

	// callbacks opcionais de métricas: op = "deposit_approve", ...; result = "ok" | "error"
	OnOp func(op, result string)
}

func New(log *zap.Logger, r Repo, p Publisher, s SettingsReader) *Ledger {
	return &Ledger{Log: log, Repo: r, Pub: p, Settings: s}
}

// Me devolve o usuário, criando a linha no primeiro acesso
func (l *Ledger) Me(ctx context.Context, id auth.Identity) (repo.User, error) {
	return l.Repo.GetOrCreateUser(ctx, id.UserID, id.Email)
}

// DepositAddress devolve o endereço configurado pelo admin
func (l *Ledger) DepositAddress(ctx context.Context) (string, error) {
	st, err := l.Settings.Get(ctx)
	if err != nil {
		return "", err
	}
	if st.BitcoinDepositAddress == "" {
		return "", ErrDepositNotEnabled
	}
	return st.BitcoinDepositAddress, nil
}

// SubmitDeposit cria o placeholder de valor zero com o hash informado pelo usuário
func (l *Ledger) SubmitDeposit(ctx context.Context, id auth.Identity, txHash string) (repo.Transaction, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return repo.Transaction{}, ErrInvalidInput
	}
	addr, err := l.DepositAddress(ctx)
	if err != nil {
		return repo.Transaction{}, err
	}
	if _, err := l.Repo.GetOrCreateUser(ctx, id.UserID, id.Email); err != nil {
		return repo.Transaction{}, err
	}
	t, err := l.Repo.CreateDeposit(ctx, id.UserID, addr, txHash)
	l.observe("deposit_submit", err)
	if err != nil {
		return repo.Transaction{}, err
	}
	l.Log.Info("deposit submitted", zap.String("tx_id", t.ID), zap.String("user_id", t.UserID))
	return t, nil
}

// ApproveDeposit credita exatamente o valor informado pelo admin
func (l *Ledger) ApproveDeposit(ctx context.Context, adminID, txID string, amount decimal.Decimal) (repo.Transaction, repo.BalanceChange, error) {
	if !amount.IsPositive() {
		return repo.Transaction{}, repo.BalanceChange{}, ErrInvalidAmount
	}
	t, change, err := l.Repo.ApproveDeposit(ctx, txID, amount, adminID)
	l.observe("deposit_approve", err)
	if err != nil {
		return repo.Transaction{}, repo.BalanceChange{}, err
	}
	l.Log.Info("deposit approved",
		zap.String("tx_id", t.ID), zap.String("user_id", t.UserID),
		zap.String("amount", amount.String()), zap.String("admin_id", adminID))
	l.publish(ctx, events.LedgerEvent{
		Type: events.LedgerDepositApproved, UserID: t.UserID, RefID: t.ID,
		Amount: amount, BalanceAfter: change.BalanceAfter, ProcessedBy: adminID,
	})
	return t, change, nil
}

func (l *Ledger) RejectDeposit(ctx context.Context, adminID, txID, notes string) (repo.Transaction, error) {
	t, err := l.Repo.RejectDeposit(ctx, txID, strings.TrimSpace(notes), adminID)
	l.observe("deposit_reject", err)
	if err != nil {
		return repo.Transaction{}, err
	}
	l.publish(ctx, events.LedgerEvent{
		Type: events.LedgerDepositRejected, UserID: t.UserID, RefID: t.ID, ProcessedBy: adminID,
	})
	return t, nil
}

// RequestWithdrawal valida valor, mínimo e endereço antes de persistir.
// O saldo é conferido dentro da transação do repo.
func (l *Ledger) RequestWithdrawal(ctx context.Context, id auth.Identity, amount decimal.Decimal, address string) (repo.WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return repo.WithdrawalRequest{}, ErrInvalidAmount
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return repo.WithdrawalRequest{}, ErrInvalidInput
	}
	st, err := l.Settings.Get(ctx)
	if err != nil {
		return repo.WithdrawalRequest{}, err
	}
	if amount.LessThan(st.MinWithdrawalAmount) {
		return repo.WithdrawalRequest{}, ErrBelowMinimum
	}
	w, err := l.Repo.CreateWithdrawal(ctx, id.UserID, amount, address)
	l.observe("withdrawal_request", err)
	if err != nil {
		return repo.WithdrawalRequest{}, err
	}
	l.Log.Info("withdrawal requested", zap.String("withdrawal_id", w.ID), zap.String("user_id", w.UserID))
	return w, nil
}

// ApproveWithdrawal debita exatamente o valor pedido
func (l *Ledger) ApproveWithdrawal(ctx context.Context, adminID, id, txHash string) (repo.WithdrawalRequest, repo.BalanceChange, error) {
	w, change, err := l.Repo.ApproveWithdrawal(ctx, id, strings.TrimSpace(txHash), adminID)
	l.observe("withdrawal_approve", err)
	if err != nil {
		return repo.WithdrawalRequest{}, repo.BalanceChange{}, err
	}
	l.Log.Info("withdrawal completed",
		zap.String("withdrawal_id", w.ID), zap.String("user_id", w.UserID),
		zap.String("amount", w.Amount.String()), zap.String("admin_id", adminID))
	l.publish(ctx, events.LedgerEvent{
		Type: events.LedgerWithdrawalCompleted, UserID: w.UserID, RefID: w.ID,
		Amount: w.Amount, BalanceAfter: change.BalanceAfter, ProcessedBy: adminID,
	})
	return w, change, nil
}

func (l *Ledger) RejectWithdrawal(ctx context.Context, adminID, id, notes string) (repo.WithdrawalRequest, error) {
	w, err := l.Repo.RejectWithdrawal(ctx, id, strings.TrimSpace(notes), adminID)
	l.observe("withdrawal_reject", err)
	if err != nil {
		return repo.WithdrawalRequest{}, err
	}
	l.publish(ctx, events.LedgerEvent{
		Type: events.LedgerWithdrawalRejected, UserID: w.UserID, RefID: w.ID,
		Amount: w.Amount, ProcessedBy: adminID,
	})
	return w, nil
}

// Debit retira amount do saldo uma única vez por externalRef (ex.: "bet:{id}")
func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (repo.BalanceChange, error) {
	return l.external(ctx, "debit", events.LedgerBetDebit, userID, amount.Neg(), amount, externalRef)
}

// Credit soma amount ao saldo uma única vez por externalRef
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (repo.BalanceChange, error) {
	return l.external(ctx, "credit", events.LedgerCredit, userID, amount, amount, externalRef)
}

func (l *Ledger) external(ctx context.Context, op, evType, userID string, delta, amount decimal.Decimal, ref string) (repo.BalanceChange, error) {
	if !amount.IsPositive() {
		return repo.BalanceChange{}, ErrInvalidAmount
	}
	if userID == "" || ref == "" {
		return repo.BalanceChange{}, ErrInvalidInput
	}
	change, err := l.Repo.ApplyExternal(ctx, userID, delta, ref)
	l.observe(op, err)
	if err != nil {
		return repo.BalanceChange{}, err
	}
	if !change.Replayed {
		l.publish(ctx, events.LedgerEvent{
			Type: evType, UserID: userID, RefID: ref,
			Amount: amount, BalanceAfter: change.BalanceAfter,
		})
	}
	return change, nil
}

// Void anula a movimentação externalRef cujo resultado o chamador não conhece
// (ex.: timeout no débito da aposta). Idempotente.
func (l *Ledger) Void(ctx context.Context, userID, externalRef string) (repo.BalanceChange, error) {
	if userID == "" || externalRef == "" {
		return repo.BalanceChange{}, ErrInvalidInput
	}
	change, err := l.Repo.VoidExternal(ctx, userID, externalRef)
	l.observe("void", err)
	if err != nil {
		return repo.BalanceChange{}, err
	}
	if !change.Replayed && !change.Delta.IsZero() {
		l.publish(ctx, events.LedgerEvent{
			Type: events.LedgerVoid, UserID: userID, RefID: externalRef,
			Amount: change.Delta, BalanceAfter: change.BalanceAfter,
		})
	}
	l.Log.Info("external movement voided",
		zap.String("user_id", userID), zap.String("ref", externalRef), zap.String("delta", change.Delta.String()))
	return change, nil
}

func (l *Ledger) ListDeposits(ctx context.Context, userID, status string) ([]repo.Transaction, error) {
	return l.Repo.ListDeposits(ctx, userID, status)
}

func (l *Ledger) ListWithdrawals(ctx context.Context, userID, status string) ([]repo.WithdrawalRequest, error) {
	return l.Repo.ListWithdrawals(ctx, userID, status)
}

// publish não falha a operação: o saldo já foi gravado
func (l *Ledger) publish(ctx context.Context, e events.LedgerEvent) {
	if l.Pub == nil {
		return
	}
	e.Ts = time.Now().UTC()
	if err := l.Pub.PublishLedgerEvent(ctx, e); err != nil {
		l.Log.Warn("ledger event publish failed", zap.String("type", e.Type), zap.String("ref_id", e.RefID), zap.Error(err))
	}
}

func (l *Ledger) observe(op string, err error) {
	if l.OnOp == nil {
		return
	}
	if err != nil {
		l.OnOp(op, "error")
		return
	}
	l.OnOp(op, "ok")
}
