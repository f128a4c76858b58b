// Package odds calcula a odd de um objetivo e o retorno potencial de uma aposta.
package odds

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DefaultBaseOdds vale quando o objetivo não define baseOdds (100:1)
const DefaultBaseOdds int64 = 100

// MaxOdds limita a odd calculada; acima disso o objetivo é recusado na criação
const MaxOdds int64 = 1_000_000_000

var ErrInvalidParameters = errors.New("invalid objective parameters")

// Parameters são as regras configuradas pelo admin para um objetivo.
// Só ItemCount, EliminationCount e DifficultyMultiplier entram no cálculo.
type Parameters struct {
	ItemType             string  `json:"itemType,omitempty" validate:"max=64"`
	ItemCount            int     `json:"itemCount,omitempty" validate:"gte=0,lte=1000"`
	Location             string  `json:"location,omitempty" validate:"max=128"`
	EliminationCount     int     `json:"eliminationCount,omitempty" validate:"gte=0,lte=1000"`
	SurvivalTime         int     `json:"survivalTime,omitempty" validate:"gte=0,lte=10080"` // minutos
	CustomRules          string  `json:"customRules,omitempty" validate:"max=2000"`
	DifficultyMultiplier float64 `json:"difficultyMultiplier,omitempty" validate:"gte=0,lte=1000"`
}

// CalculateOdds aplica multiplicador de dificuldade, ajuste por itens e por eliminações
// sobre a odd base e arredonda para o inteiro mais próximo (meio arredonda para cima).
func CalculateOdds(baseOdds int64, p Parameters) int64 {
	return int64(math.Floor(rawOdds(baseOdds, p) + 0.5))
}

func rawOdds(baseOdds int64, p Parameters) float64 {
	odds := float64(baseOdds)
	if baseOdds == 0 {
		odds = float64(DefaultBaseOdds)
	}
	if p.DifficultyMultiplier != 0 {
		odds *= p.DifficultyMultiplier
	}
	if p.ItemCount > 1 {
		odds *= 1 + float64(p.ItemCount)*0.1
	}
	if p.EliminationCount > 1 {
		odds *= 1 + float64(p.EliminationCount)*0.15
	}
	return odds
}

// CalculatePayout é amount * odds, sem arredondamento
func CalculatePayout(amount decimal.Decimal, odds int64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(odds))
}

// ValidateParameters roda na criação do objetivo; CalculateOdds em si não valida nada.
// Garante que a odd resultante cabe em (0, MaxOdds].
func ValidateParameters(baseOdds int64, p Parameters) error {
	switch {
	case baseOdds < 0:
		return fmt.Errorf("%w: baseOdds must not be negative", ErrInvalidParameters)
	case p.ItemCount < 0, p.EliminationCount < 0, p.SurvivalTime < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidParameters)
	case p.DifficultyMultiplier < 0, math.IsNaN(p.DifficultyMultiplier), math.IsInf(p.DifficultyMultiplier, 0):
		return fmt.Errorf("%w: difficultyMultiplier must be positive", ErrInvalidParameters)
	}
	if v := rawOdds(baseOdds, p); v > float64(MaxOdds) {
		return fmt.Errorf("%w: resulting odds exceed %d", ErrInvalidParameters, MaxOdds)
	}
	return nil
}
