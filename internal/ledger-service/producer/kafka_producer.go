package producer

import (
	"context"
	"time"

	"github.com/radieske/objective-bet-platform/internal/shared/kafka"
	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

// KafkaPublisher publica movimentações do ledger em "ledger_events"
type KafkaPublisher struct {
	Writer kafka.MessageWriter
}

func NewKafkaPublisher(w kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

// PublishLedgerEvent usa o userID como chave para manter a ordem por usuário
func (p *KafkaPublisher) PublishLedgerEvent(ctx context.Context, e events.LedgerEvent) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	return kafka.WriteJSON(ctx, p.Writer, e.UserID, e)
}
