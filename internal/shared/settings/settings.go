package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	rowID    = "main"
	cacheKey = "settings:main"
)

// ErrInvalid envolve os erros de Validate
var ErrInvalid = errors.New("invalid settings")

// Settings são os parâmetros operacionais editados pelo admin
type Settings struct {
	BitcoinDepositAddress string          `json:"bitcoinDepositAddress"`
	DefaultOdds           int64           `json:"defaultOdds"`
	MinBetAmount          decimal.Decimal `json:"minBetAmount"`
	MaxBetAmount          decimal.Decimal `json:"maxBetAmount"`
	MinWithdrawalAmount   decimal.Decimal `json:"minWithdrawalAmount"`
	UpdatedBy             string          `json:"updatedBy,omitempty"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Defaults valem enquanto o admin não salvar nada
func Defaults() Settings {
	return Settings{
		DefaultOdds:         100,
		MinBetAmount:        decimal.NewFromInt(1),
		MaxBetAmount:        decimal.NewFromInt(1000),
		MinWithdrawalAmount: decimal.NewFromInt(10),
	}
}

// Validate rejeita combinações que travariam apostas ou saques
func (s Settings) Validate() error {
	if s.DefaultOdds <= 0 {
		return fmt.Errorf("%w: defaultOdds must be positive", ErrInvalid)
	}
	if s.MinBetAmount.IsNegative() || s.MinWithdrawalAmount.IsNegative() {
		return fmt.Errorf("%w: minimum amounts must not be negative", ErrInvalid)
	}
	if s.MaxBetAmount.LessThan(s.MinBetAmount) {
		return fmt.Errorf("%w: maxBetAmount must be >= minBetAmount", ErrInvalid)
	}
	return nil
}

// Store lê e grava admin_settings no Postgres, com cache Redis na leitura
type Store struct {
	db  *sql.DB
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(db *sql.DB, rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{db: db, rdb: rdb, ttl: ttl}
}

// Get retorna as configurações atuais (cache -> banco -> defaults)
func (s *Store) Get(ctx context.Context) (Settings, error) {
	if s.rdb != nil {
		if b, err := s.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached Settings
			if json.Unmarshal(b, &cached) == nil {
				return cached, nil
			}
		}
	}

	var out Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT bitcoin_deposit_address, default_odds, min_bet_amount, max_bet_amount,
		       min_withdrawal_amount, updated_by, updated_at
		FROM admin_settings WHERE id=$1`, rowID).Scan(
		&out.BitcoinDepositAddress, &out.DefaultOdds, &out.MinBetAmount, &out.MaxBetAmount,
		&out.MinWithdrawalAmount, &out.UpdatedBy, &out.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	if s.rdb != nil {
		b, _ := json.Marshal(out)
		_ = s.rdb.Set(ctx, cacheKey, b, s.ttl).Err()
	}
	return out, nil
}

// Update grava (upsert) e invalida o cache
func (s *Store) Update(ctx context.Context, in Settings, updatedBy string) (Settings, error) {
	if err := in.Validate(); err != nil {
		return Settings{}, err
	}
	in.UpdatedBy = updatedBy
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO admin_settings
		  (id, bitcoin_deposit_address, default_odds, min_bet_amount, max_bet_amount, min_withdrawal_amount, updated_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT (id) DO UPDATE SET
		  bitcoin_deposit_address = EXCLUDED.bitcoin_deposit_address,
		  default_odds            = EXCLUDED.default_odds,
		  min_bet_amount          = EXCLUDED.min_bet_amount,
		  max_bet_amount          = EXCLUDED.max_bet_amount,
		  min_withdrawal_amount   = EXCLUDED.min_withdrawal_amount,
		  updated_by              = EXCLUDED.updated_by,
		  updated_at              = EXCLUDED.updated_at
		RETURNING updated_at`,
		rowID, in.BitcoinDepositAddress, in.DefaultOdds, in.MinBetAmount, in.MaxBetAmount,
		in.MinWithdrawalAmount, updatedBy,
	).Scan(&in.UpdatedAt)
	if err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}

	if s.rdb != nil {
		_ = s.rdb.Del(ctx, cacheKey).Err()
	}
	return in, nil
}
