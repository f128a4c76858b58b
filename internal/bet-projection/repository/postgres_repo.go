package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/objective-bet-platform/internal/shared/db"
	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

// Projection é o resultado de aplicar um bet_placed
type Projection struct {
	Applied     bool // false quando a aposta já tinha sido projetada
	MatchID     string
	ObjectiveID string
	Pot         decimal.Decimal
	TotalBets   decimal.Decimal
}

// PostgresRepo mantém objectives.total_bets e matches.pot a partir das apostas
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// ApplyBet soma a aposta ao objetivo e ao pote numa única transação.
// bet_projections garante que cada aposta entra uma única vez.
func (r *PostgresRepo) ApplyBet(ctx context.Context, e events.BetPlaced) (Projection, error) {
	out := Projection{MatchID: e.MatchID, ObjectiveID: e.ObjectiveID}
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO bet_projections (bet_id) VALUES ($1) ON CONFLICT (bet_id) DO NOTHING`, e.BetID)
		if err != nil {
			return fmt.Errorf("mark projection: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return nil
		}

		if err := tx.QueryRowContext(ctx,
			`UPDATE objectives SET total_bets = total_bets + $1 WHERE id=$2 RETURNING total_bets`,
			e.Amount, e.ObjectiveID).Scan(&out.TotalBets); err != nil {
			return fmt.Errorf("update objective total_bets: %w", err)
		}
		if err := tx.QueryRowContext(ctx,
			`UPDATE matches SET pot = pot + $1, updated_at = NOW() WHERE id=$2 RETURNING pot`,
			e.Amount, e.MatchID).Scan(&out.Pot); err != nil {
			return fmt.Errorf("update match pot: %w", err)
		}
		out.Applied = true
		return nil
	})
	if err != nil {
		return Projection{}, err
	}
	return out, nil
}

// Reconcile recalcula objectives.total_bets e matches.pot como a soma das apostas
// não canceladas e devolve quantas linhas estavam divergentes.
// Toda aposta existente é marcada em bet_projections na mesma transação, assim um
// bet_placed que chegue depois não soma de novo o que a reconciliação já contou.
func (r *PostgresRepo) Reconcile(ctx context.Context) (int64, error) {
	const (
		markAll = `INSERT INTO bet_projections (bet_id) SELECT id FROM bets ON CONFLICT (bet_id) DO NOTHING`

		fixObjectives = `
		UPDATE objectives o
		SET total_bets = s.total
		FROM (
			SELECT ob.id, COALESCE(SUM(b.amount), 0) AS total
			FROM objectives ob
			LEFT JOIN bets b ON b.objective_id = ob.id AND b.status <> 'cancelled'
			GROUP BY ob.id
		) s
		WHERE o.id = s.id AND o.total_bets <> s.total`

		fixPots = `
		UPDATE matches m
		SET pot = s.total, updated_at = NOW()
		FROM (
			SELECT ma.id, COALESCE(SUM(b.amount), 0) AS total
			FROM matches ma
			LEFT JOIN bets b ON b.match_id = ma.id AND b.status <> 'cancelled'
			GROUP BY ma.id
		) s
		WHERE m.id = s.id AND m.pot <> s.total`
	)

	var corrected int64
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, markAll); err != nil {
			return fmt.Errorf("mark projections: %w", err)
		}
		for _, step := range []struct{ name, q string }{
			{"total_bets", fixObjectives},
			{"pot", fixPots},
		} {
			res, err := tx.ExecContext(ctx, step.q)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", step.name, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			corrected += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return corrected, nil
}
