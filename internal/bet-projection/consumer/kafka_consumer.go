package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/bet-projection/repository"
	"github.com/radieske/objective-bet-platform/internal/shared/kafka"
	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

// MessageReader é satisfeito por *kafka.Reader com consumer group
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Projector interface {
	ApplyBet(ctx context.Context, e events.BetPlaced) (repository.Projection, error)
}

type Broadcaster interface {
	PublishMatchUpdate(ctx context.Context, u events.MatchUpdate) error
}

var errInvalidEvent = errors.New("invalid bet_placed event")

// Processor consome bet_placed, projeta total_bets/pot e avisa o websocket.
// Mensagens que falham após Retries tentativas vão para a DLQ.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Processor struct {
	Log       *zap.Logger
	Reader    MessageReader
	Repo      Projector
	Broadcast Broadcaster
	DLQ       kafka.MessageWriter // opcional

	Retries int           // tentativas extras após a primeira falha
	Backoff time.Duration // espera base entre tentativas (cresce linearmente)

	OnConsumed  func()       // métricas (counter++)
	OnProjected func()       // métricas
	OnDuplicate func()       // aposta já projetada
	OnDLQ       func()       // métricas
	OnError     func(string) // métricas por fase
}

// Run inicia o loop principal de consumo; retorna quando ctx é cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.errorAt("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		call(p.OnConsumed)

		if err := p.Handle(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// sem commit: a mensagem volta após rebalance/restart
			p.Log.Error("bet_placed not handled", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			p.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			p.errorAt("commit")
		}
	}
}

// Handle processa uma mensagem. nil significa que ela pode ser commitada
// (projetada, duplicada ou enviada para a DLQ).
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	var ev events.BetPlaced
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.errorAt("decode")
		return p.deadLetter(ctx, m, fmt.Errorf("%w: %v", errInvalidEvent, err))
	}
	if ev.BetID == "" || ev.MatchID == "" || ev.ObjectiveID == "" || !ev.Amount.IsPositive() {
		p.errorAt("validate")
		return p.deadLetter(ctx, m, errInvalidEvent)
	}

	proj, err := p.Repo.ApplyBet(ctx, ev)
	for i := 0; err != nil && i < p.Retries; i++ {
		p.Log.Warn("projection failed, retrying", zap.String("bet_id", ev.BetID), zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * p.Backoff):
		}
		proj, err = p.Repo.ApplyBet(ctx, ev)
	}
	if err != nil {
		p.errorAt("db")
		return p.deadLetter(ctx, m, err)
	}

	if !proj.Applied {
		call(p.OnDuplicate)
		p.Log.Debug("bet already projected", zap.String("bet_id", ev.BetID))
		return nil
	}
	call(p.OnProjected)

	if p.Broadcast != nil {
		if err := p.Broadcast.PublishMatchUpdate(ctx, events.MatchUpdate{
			MatchID:     proj.MatchID,
			Kind:        "pot",
			Pot:         proj.Pot,
			ObjectiveID: proj.ObjectiveID,
			TotalBets:   proj.TotalBets,
			UpdatedAt:   time.Now().UTC(),
		}); err != nil {
			p.Log.Warn("match update publish failed", zap.String("match_id", proj.MatchID), zap.Error(err))
			p.errorAt("broadcast")
		}
	}
	return nil
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if p.DLQ == nil {
		p.Log.Error("dropping bet_placed (no DLQ)", zap.Int64("offset", m.Offset), zap.Error(cause))
		return nil
	}
	if err := kafka.WriteRaw(ctx, p.DLQ, string(m.Key), m.Value); err != nil {
		p.errorAt("dlq")
		return fmt.Errorf("dlq write: %w (cause: %v)", err, cause)
	}
	call(p.OnDLQ)
	p.Log.Warn("bet_placed sent to DLQ", zap.Int64("offset", m.Offset), zap.Error(cause))
	return nil
}

func (p *Processor) errorAt(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func call(f func()) {
	if f != nil {
		f()
	}
}
