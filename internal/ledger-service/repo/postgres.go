package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/objective-bet-platform/internal/shared/db"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrAlreadyProcessed  = errors.New("request already processed")
	ErrDuplicateTxHash   = errors.New("transaction hash already submitted")
)

// Postgres implementa usuários, depósitos, saques e o balance_ledger.
// Toda mutação de saldo acontece na mesma transação SQL que muda o status do pedido.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

const userCols = `id, email, display_name, role, balance, created_at, updated_at`

func scanUser(r rowScanner) (User, error) {
	var u User
	err := r.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetOrCreateUser garante a linha do usuário (criado no primeiro acesso, saldo 0)
func (p *Postgres) GetOrCreateUser(ctx context.Context, userID, email string) (User, error) {
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO users (id, email) VALUES ($1,$2) ON CONFLICT (id) DO NOTHING`,
		userID, email); err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return p.GetUser(ctx, userID)
}

func (p *Postgres) GetUser(ctx context.Context, userID string) (User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ---------- depósitos ----------

const txCols = `id, user_id, type, amount, status, crypto_address, tx_hash, admin_notes, created_at, completed_at, completed_by`

func scanTransaction(r rowScanner) (Transaction, error) {
	var t Transaction
	var completedAt sql.NullTime
	err := r.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.CryptoAddress, &t.TxHash,
		&t.AdminNotes, &t.CreatedAt, &completedAt, &t.CompletedBy)
	t.CompletedAt = nullTime(completedAt)
	return t, err
}

// CreateDeposit registra o pedido com amount=0; o valor real é definido pelo admin
func (p *Postgres) CreateDeposit(ctx context.Context, userID, cryptoAddress, txHash string) (Transaction, error) {
	t := Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          TypeDeposit,
		Amount:        decimal.Zero,
		Status:        StatusPending,
		CryptoAddress: cryptoAddress,
		TxHash:        txHash,
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, status, crypto_address, tx_hash)
		VALUES ($1,$2,'deposit',0,'pending',$3,$4)
		RETURNING created_at`,
		t.ID, userID, cryptoAddress, txHash,
	).Scan(&t.CreatedAt)
	if err != nil {
		switch {
		case isPQCode(err, "23505"):
			return Transaction{}, ErrDuplicateTxHash
		case isPQCode(err, "23503"):
			return Transaction{}, ErrUserNotFound
		}
		return Transaction{}, fmt.Errorf("insert deposit: %w", err)
	}
	return t, nil
}

// ApproveDeposit define o valor, marca completed e credita o saldo numa única transação.
// Pedido fora de pending retorna ErrAlreadyProcessed sem tocar no saldo.
func (p *Postgres) ApproveDeposit(ctx context.Context, txID string, amount decimal.Decimal, adminID string) (Transaction, BalanceChange, error) {
	var (
		t      Transaction
		change BalanceChange
	)
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		if t, err = lockDeposit(ctx, tx, txID); err != nil {
			return err
		}
		if t.Status != StatusPending {
			return ErrAlreadyProcessed
		}

		var completedAt time.Time
		if err = tx.QueryRowContext(ctx, `
			UPDATE transactions SET amount=$1, status='completed', completed_at=NOW(), completed_by=$2
			WHERE id=$3
			RETURNING completed_at`, amount, adminID, t.ID).Scan(&completedAt); err != nil {
			return fmt.Errorf("update deposit: %w", err)
		}
		t.Amount, t.Status, t.CompletedAt, t.CompletedBy = amount, StatusCompleted, &completedAt, adminID

		change, err = applyDelta(ctx, tx, t.UserID, amount, RefDeposit, t.ID)
		return err
	})
	if err != nil {
		return Transaction{}, BalanceChange{}, err
	}
	return t, change, nil
}

// RejectDeposit marca o pedido como rejected; saldo não muda
func (p *Postgres) RejectDeposit(ctx context.Context, txID, notes, adminID string) (Transaction, error) {
	var t Transaction
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		if t, err = lockDeposit(ctx, tx, txID); err != nil {
			return err
		}
		if t.Status != StatusPending {
			return ErrAlreadyProcessed
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE transactions SET status='rejected', admin_notes=$1, completed_by=$2 WHERE id=$3`,
			notes, adminID, t.ID); err != nil {
			return fmt.Errorf("reject deposit: %w", err)
		}
		t.Status, t.AdminNotes, t.CompletedBy = StatusRejected, notes, adminID
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func lockDeposit(ctx context.Context, tx *sql.Tx, txID string) (Transaction, error) {
	t, err := scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+txCols+` FROM transactions WHERE id=$1 AND type='deposit' FOR UPDATE`, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("lock deposit: %w", err)
	}
	return t, nil
}

// ListDeposits lista depósitos, mais recentes primeiro; filtros vazios são ignorados
func (p *Postgres) ListDeposits(ctx context.Context, userID, status string) ([]Transaction, error) {
	q, args := withFilters(`SELECT `+txCols+` FROM transactions WHERE type='deposit'`, userID, status)
	rows, err := p.db.QueryContext(ctx, q+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---------- saques ----------

const wdCols = `id, user_id, amount, crypto_address, status, admin_notes, tx_hash, created_at, processed_at, processed_by`

func scanWithdrawal(r rowScanner) (WithdrawalRequest, error) {
	var w WithdrawalRequest
	var processedAt sql.NullTime
	err := r.Scan(&w.ID, &w.UserID, &w.Amount, &w.CryptoAddress, &w.Status, &w.AdminNotes, &w.TxHash,
		&w.CreatedAt, &processedAt, &w.ProcessedBy)
	w.ProcessedAt = nullTime(processedAt)
	return w, err
}

// CreateWithdrawal registra o pedido se o saldo atual cobre o valor
func (p *Postgres) CreateWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, cryptoAddress string) (WithdrawalRequest, error) {
	w := WithdrawalRequest{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		CryptoAddress: cryptoAddress,
		Status:        StatusPending,
	}
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		balance, err := lockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(balance) {
			return ErrInsufficientFunds
		}
		if err = tx.QueryRowContext(ctx, `
			INSERT INTO withdrawal_requests (id, user_id, amount, crypto_address, status)
			VALUES ($1,$2,$3,$4,'pending')
			RETURNING created_at`, w.ID, userID, amount, cryptoAddress).Scan(&w.CreatedAt); err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return WithdrawalRequest{}, err
	}
	return w, nil
}

// ApproveWithdrawal marca completed e debita o saldo na mesma transação,
// na mesma ordem do depósito: pedido, saldo, ledger.
func (p *Postgres) ApproveWithdrawal(ctx context.Context, id, txHash, adminID string) (WithdrawalRequest, BalanceChange, error) {
	var (
		w      WithdrawalRequest
		change BalanceChange
	)
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		if w, err = lockWithdrawal(ctx, tx, id); err != nil {
			return err
		}
		if w.Status != StatusPending {
			return ErrAlreadyProcessed
		}

		var processedAt time.Time
		if err = tx.QueryRowContext(ctx, `
			UPDATE withdrawal_requests SET status='completed', tx_hash=$1, processed_at=NOW(), processed_by=$2
			WHERE id=$3
			RETURNING processed_at`, txHash, adminID, w.ID).Scan(&processedAt); err != nil {
			return fmt.Errorf("update withdrawal: %w", err)
		}
		w.Status, w.TxHash, w.ProcessedAt, w.ProcessedBy = StatusCompleted, txHash, &processedAt, adminID

		change, err = applyDelta(ctx, tx, w.UserID, w.Amount.Neg(), RefWithdrawal, w.ID)
		return err
	})
	if err != nil {
		return WithdrawalRequest{}, BalanceChange{}, err
	}
	return w, change, nil
}

// RejectWithdrawal marca o pedido como rejected; saldo não muda
func (p *Postgres) RejectWithdrawal(ctx context.Context, id, notes, adminID string) (WithdrawalRequest, error) {
	var w WithdrawalRequest
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		if w, err = lockWithdrawal(ctx, tx, id); err != nil {
			return err
		}
		if w.Status != StatusPending {
			return ErrAlreadyProcessed
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE withdrawal_requests SET status='rejected', admin_notes=$1, processed_by=$2 WHERE id=$3`,
			notes, adminID, w.ID); err != nil {
			return fmt.Errorf("reject withdrawal: %w", err)
		}
		w.Status, w.AdminNotes, w.ProcessedBy = StatusRejected, notes, adminID
		return nil
	})
	if err != nil {
		return WithdrawalRequest{}, err
	}
	return w, nil
}

func lockWithdrawal(ctx context.Context, tx *sql.Tx, id string) (WithdrawalRequest, error) {
	w, err := scanWithdrawal(tx.QueryRowContext(ctx,
		`SELECT `+wdCols+` FROM withdrawal_requests WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return WithdrawalRequest{}, ErrNotFound
	}
	if err != nil {
		return WithdrawalRequest{}, fmt.Errorf("lock withdrawal: %w", err)
	}
	return w, nil
}

// ListWithdrawals lista saques, mais recentes primeiro; filtros vazios são ignorados
func (p *Postgres) ListWithdrawals(ctx context.Context, userID, status string) ([]WithdrawalRequest, error) {
	q, args := withFilters(`SELECT `+wdCols+` FROM withdrawal_requests WHERE TRUE`, userID, status)
	rows, err := p.db.QueryContext(ctx, q+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	out := []WithdrawalRequest{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ---------- movimentações externas (apostas) ----------

// ApplyExternal aplica delta ao saldo uma única vez por externalRef.
// Repetir a mesma referência devolve o resultado original com Replayed=true.
func (p *Postgres) ApplyExternal(ctx context.Context, userID string, delta decimal.Decimal, externalRef string) (BalanceChange, error) {
	var change BalanceChange
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `
			SELECT user_id, delta, balance_after FROM balance_ledger
			WHERE ref_type=$1 AND ref_id=$2`, RefExternal, externalRef,
		).Scan(&owner, &change.Delta, &change.BalanceAfter)
		if err == nil {
			if owner != userID {
				return fmt.Errorf("external ref %q belongs to another user: %w", externalRef, ErrAlreadyProcessed)
			}
			change.UserID, change.RefType, change.RefID, change.Replayed = owner, RefExternal, externalRef, true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup external ref: %w", err)
		}

		change, err = applyDelta(ctx, tx, userID, delta, RefExternal, externalRef)
		return err
	})
	if err != nil {
		return BalanceChange{}, err
	}
	return change, nil
}

// UserRole lê users.role; usuário ainda sem linha é "user"
func (p *Postgres) UserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := p.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return RoleUser, nil
	}
	if err != nil {
		return "", fmt.Errorf("user role: %w", err)
	}
	return role, nil
}

// VoidExternal anula uma movimentação externa de resultado incerto.
// Se a referência já foi aplicada, grava o estorno ("void:{ref}"); se não, reserva a
// referência com delta 0 para que um débito atrasado vire replay sem mexer no saldo.
// O lock da linha do usuário serializa com ApplyExternal.
func (p *Postgres) VoidExternal(ctx context.Context, userID, externalRef string) (BalanceChange, error) {
	voidRef := "void:" + externalRef
	var change BalanceChange
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		balance, err := lockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}

		var prevDelta decimal.Decimal
		err = tx.QueryRowContext(ctx, `
			SELECT delta, balance_after FROM balance_ledger
			WHERE ref_type=$1 AND ref_id=$2`, RefExternal, voidRef,
		).Scan(&prevDelta, &change.BalanceAfter)
		if err == nil {
			change.UserID, change.RefType, change.RefID, change.Delta, change.Replayed = userID, RefExternal, voidRef, prevDelta, true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup void ref: %w", err)
		}

		var (
			owner string
			delta decimal.Decimal
		)
		err = tx.QueryRowContext(ctx, `
			SELECT user_id, delta FROM balance_ledger
			WHERE ref_type=$1 AND ref_id=$2`, RefExternal, externalRef,
		).Scan(&owner, &delta)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// nada aplicado: reserva a referência original e registra o void sem efeito
			for _, ref := range []string{externalRef, voidRef} {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO balance_ledger (user_id, ref_type, ref_id, delta, balance_after)
					VALUES ($1,$2,$3,$4,$5)`, userID, RefExternal, ref, decimal.Zero, balance); err != nil {
					return fmt.Errorf("reserve external ref: %w", err)
				}
			}
			change = BalanceChange{UserID: userID, RefType: RefExternal, RefID: voidRef, Delta: decimal.Zero, BalanceAfter: balance}
			return nil
		case err != nil:
			return fmt.Errorf("lookup external ref: %w", err)
		case owner != userID:
			return fmt.Errorf("external ref %q belongs to another user: %w", externalRef, ErrAlreadyProcessed)
		}

		change, err = applyDelta(ctx, tx, userID, delta.Neg(), RefExternal, voidRef)
		return err
	})
	if err != nil {
		return BalanceChange{}, err
	}
	return change, nil
}

// ---------- helpers ----------

// lockBalance trava a linha do usuário (FOR UPDATE) e devolve o saldo
func lockBalance(ctx context.Context, tx *sql.Tx, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id=$1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock balance: %w", err)
	}
	return balance, nil
}

// applyDelta muda o saldo e grava a entrada do ledger; saldo nunca fica negativo
func applyDelta(ctx context.Context, tx *sql.Tx, userID string, delta decimal.Decimal, refType, refID string) (BalanceChange, error) {
	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return BalanceChange{}, err
	}
	next := balance.Add(delta)
	if next.IsNegative() {
		return BalanceChange{}, ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET balance=$1, updated_at=NOW() WHERE id=$2`, next, userID); err != nil {
		return BalanceChange{}, fmt.Errorf("update balance: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO balance_ledger (user_id, ref_type, ref_id, delta, balance_after)
		VALUES ($1,$2,$3,$4,$5)`, userID, refType, refID, delta, next); err != nil {
		if isPQCode(err, "23505") {
			return BalanceChange{}, ErrAlreadyProcessed
		}
		return BalanceChange{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	return BalanceChange{
		UserID:       userID,
		RefType:      refType,
		RefID:        refID,
		Delta:        delta,
		BalanceAfter: next,
	}, nil
}

func withFilters(base, userID, status string) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(base)
	if userID != "" {
		args = append(args, userID)
		fmt.Fprintf(&sb, " AND user_id=$%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		fmt.Fprintf(&sb, " AND status=$%d", len(args))
	}
	return sb.String(), args
}

func isPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
