package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/objective-bet-platform/internal/shared/db"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrMatchFull     = errors.New("match is full")
	ErrBetNotPending = errors.New("bet already resolved")
)

// Postgres implementa persistência de partidas, objetivos e apostas
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de apostas
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

// ---------- partidas ----------

const matchCols = `id, title, description, game_code, status, max_players, current_players, player_ids,
	pot, rollover_pot, created_by, created_at, updated_at, start_date, end_date`

func scanMatch(r rowScanner) (Match, error) {
	var (
		m          Match
		start, end sql.NullTime
	)
	err := r.Scan(&m.ID, &m.Title, &m.Description, &m.GameCode, &m.Status, &m.MaxPlayers, &m.CurrentPlayers,
		pq.Array(&m.PlayerIDs), &m.Pot, &m.RolloverPot, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt, &start, &end)
	m.StartDate, m.EndDate = nullTime(start), nullTime(end)
	if m.PlayerIDs == nil {
		m.PlayerIDs = []string{}
	}
	return m, err
}

// CreateMatch insere a partida com status upcoming e pote zerado
func (p *Postgres) CreateMatch(ctx context.Context, m *Match) error {
	m.ID = uuid.NewString()
	m.Status = MatchUpcoming
	m.Pot = decimal.Zero
	m.CurrentPlayers = 0
	m.PlayerIDs = []string{}
	return p.db.QueryRowContext(ctx, `
		INSERT INTO matches (id, title, description, game_code, status, max_players, rollover_pot, created_by, start_date, end_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		m.ID, m.Title, m.Description, m.GameCode, m.Status, m.MaxPlayers, m.RolloverPot, m.CreatedBy,
		m.StartDate, m.EndDate,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (p *Postgres) GetMatch(ctx context.Context, id string) (Match, error) {
	m, err := scanMatch(p.db.QueryRowContext(ctx, `SELECT `+matchCols+` FROM matches WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Match{}, ErrNotFound
	}
	if err != nil {
		return Match{}, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// ListMatches lista partidas, mais novas primeiro; status vazio lista todas
func (p *Postgres) ListMatches(ctx context.Context, status string) ([]Match, error) {
	q := `SELECT ` + matchCols + ` FROM matches`
	var args []any
	if status != "" {
		q += ` WHERE status=$1`
		args = append(args, status)
	}
	rows, err := p.db.QueryContext(ctx, q+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	out := []Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateMatchStatus(ctx context.Context, id, status string) (Match, error) {
	m, err := scanMatch(p.db.QueryRowContext(ctx, `
		UPDATE matches SET status=$1, updated_at=NOW() WHERE id=$2
		RETURNING `+matchCols, status, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Match{}, ErrNotFound
	}
	if err != nil {
		return Match{}, fmt.Errorf("update match status: %w", err)
	}
	return m, nil
}

// AddPlayer inscreve o jogador; repetir a inscrição não altera a partida
func (p *Postgres) AddPlayer(ctx context.Context, matchID, playerID string) (Match, error) {
	var m Match
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		m, err = scanMatch(tx.QueryRowContext(ctx, `SELECT `+matchCols+` FROM matches WHERE id=$1 FOR UPDATE`, matchID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock match: %w", err)
		}
		if slices.Contains(m.PlayerIDs, playerID) {
			return nil
		}
		if m.CurrentPlayers >= m.MaxPlayers {
			return ErrMatchFull
		}
		m, err = scanMatch(tx.QueryRowContext(ctx, `
			UPDATE matches
			SET player_ids = array_append(player_ids, $1), current_players = current_players + 1, updated_at = NOW()
			WHERE id=$2
			RETURNING `+matchCols, playerID, matchID))
		if err != nil {
			return fmt.Errorf("add player: %w", err)
		}
		return nil
	})
	if err != nil {
		return Match{}, err
	}
	return m, nil
}

// ---------- objetivos ----------

const objectiveCols = `id, match_id, title, description, type, parameters, base_odds, calculated_odds,
	total_bets, winner, completed, created_at`

func scanObjective(r rowScanner) (Objective, error) {
	var (
		o      Objective
		params []byte
	)
	if err := r.Scan(&o.ID, &o.MatchID, &o.Title, &o.Description, &o.Type, &params, &o.BaseOdds,
		&o.CalculatedOdds, &o.TotalBets, &o.Winner, &o.Completed, &o.CreatedAt); err != nil {
		return Objective{}, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &o.Parameters); err != nil {
			return Objective{}, fmt.Errorf("decode objective parameters: %w", err)
		}
	}
	return o, nil
}

// CreateObjective insere o objetivo; CalculatedOdds já deve vir preenchido
func (p *Postgres) CreateObjective(ctx context.Context, o *Objective) error {
	params, err := json.Marshal(o.Parameters)
	if err != nil {
		return fmt.Errorf("encode objective parameters: %w", err)
	}
	o.ID = uuid.NewString()
	o.TotalBets = decimal.Zero
	o.Completed = false
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO objectives (id, match_id, title, description, type, parameters, base_odds, calculated_odds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		o.ID, o.MatchID, o.Title, o.Description, o.Type, params, o.BaseOdds, o.CalculatedOdds,
	).Scan(&o.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert objective: %w", err)
	}
	return nil
}

func (p *Postgres) GetObjective(ctx context.Context, id string) (Objective, error) {
	o, err := scanObjective(p.db.QueryRowContext(ctx, `SELECT `+objectiveCols+` FROM objectives WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Objective{}, ErrNotFound
	}
	if err != nil {
		return Objective{}, fmt.Errorf("get objective: %w", err)
	}
	return o, nil
}

// ListObjectives lista objetivos da partida, mais antigos primeiro
func (p *Postgres) ListObjectives(ctx context.Context, matchID string) ([]Objective, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+objectiveCols+` FROM objectives WHERE match_id=$1 ORDER BY created_at ASC`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	defer rows.Close()

	out := []Objective{}
	for rows.Next() {
		o, err := scanObjective(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CompleteObjective marca o objetivo como concluído pelo jogador winner
func (p *Postgres) CompleteObjective(ctx context.Context, id, winner string) (Objective, error) {
	o, err := scanObjective(p.db.QueryRowContext(ctx, `
		UPDATE objectives SET completed=TRUE, winner=$1 WHERE id=$2
		RETURNING `+objectiveCols, winner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Objective{}, ErrNotFound
	}
	if err != nil {
		return Objective{}, fmt.Errorf("complete objective: %w", err)
	}
	return o, nil
}

// ---------- apostas ----------

const betCols = `id, user_id, match_id, objective_id, amount, odds, potential_payout, status, created_at, resolved_at`

func scanBet(r rowScanner) (Bet, error) {
	var (
		b          Bet
		resolvedAt sql.NullTime
	)
	err := r.Scan(&b.ID, &b.UserID, &b.MatchID, &b.ObjectiveID, &b.Amount, &b.Odds, &b.PotentialPayout,
		&b.Status, &b.CreatedAt, &resolvedAt)
	b.ResolvedAt = nullTime(resolvedAt)
	return b, err
}

// CreateBet insere a aposta com status pending
func (p *Postgres) CreateBet(ctx context.Context, b *Bet) error {
	b.ID = uuid.NewString()
	b.Status = BetPending
	return p.db.QueryRowContext(ctx, `
		INSERT INTO bets (id, user_id, match_id, objective_id, amount, odds, potential_payout, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		b.ID, b.UserID, b.MatchID, b.ObjectiveID, b.Amount, b.Odds, b.PotentialPayout, b.Status,
	).Scan(&b.CreatedAt)
}

// ResolveBet move a aposta de pending para status e grava resolved_at
func (p *Postgres) ResolveBet(ctx context.Context, id, status string) (Bet, error) {
	b, err := scanBet(p.db.QueryRowContext(ctx, `
		UPDATE bets SET status=$1, resolved_at=NOW()
		WHERE id=$2 AND status='pending'
		RETURNING `+betCols, status, id))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Bet{}, fmt.Errorf("resolve bet: %w", err)
	}

	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bets WHERE id=$1)`, id).Scan(&exists); err != nil {
		return Bet{}, fmt.Errorf("resolve bet: %w", err)
	}
	if !exists {
		return Bet{}, ErrNotFound
	}
	return Bet{}, ErrBetNotPending
}

func (p *Postgres) GetBet(ctx context.Context, id string) (Bet, error) {
	b, err := scanBet(p.db.QueryRowContext(ctx, `SELECT `+betCols+` FROM bets WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Bet{}, ErrNotFound
	}
	if err != nil {
		return Bet{}, fmt.Errorf("get bet: %w", err)
	}
	return b, nil
}

// ListBets filtra por usuário e/ou partida, mais recentes primeiro
func (p *Postgres) ListBets(ctx context.Context, userID, matchID string) ([]Bet, error) {
	q := `SELECT ` + betCols + ` FROM bets WHERE TRUE`
	var args []any
	if userID != "" {
		args = append(args, userID)
		q += fmt.Sprintf(" AND user_id=$%d", len(args))
	}
	if matchID != "" {
		args = append(args, matchID)
		q += fmt.Sprintf(" AND match_id=$%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, q+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	out := []Bet{}
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ---------- usuários ----------

// UserRole lê users.role (tabela mantida pelo ledger); usuário sem cadastro é "user"
func (p *Postgres) UserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := p.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "user", nil
	}
	if err != nil {
		return "", fmt.Errorf("user role: %w", err)
	}
	return role, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
