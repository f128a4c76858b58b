package producer

import (
	"context"
	"time"

	"github.com/radieske/objective-bet-platform/internal/shared/kafka"
	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

// KafkaPublisher publica apostas confirmadas em "bet_placed"
type KafkaPublisher struct {
	Writer kafka.MessageWriter
}

func NewKafkaPublisher(w kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

// PublishBetPlaced usa o matchID como chave: o worker projeta o pote de cada partida em ordem
func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	return kafka.WriteJSON(ctx, p.Writer, e.MatchID, e)
}
