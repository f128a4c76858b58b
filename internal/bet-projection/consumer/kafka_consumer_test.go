package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/bet-projection/repository"
	"github.com/radieske/objective-bet-platform/internal/shared/kafka"
	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

type fakeProjector struct {
	seen   map[string]bool
	fails  int // falhas antes de funcionar
	calls  int
	totals map[string]decimal.Decimal
}

func newProjector() *fakeProjector {
	return &fakeProjector{seen: map[string]bool{}, totals: map[string]decimal.Decimal{}}
}

func (f *fakeProjector) ApplyBet(_ context.Context, e events.BetPlaced) (repository.Projection, error) {
	f.calls++
	if f.fails > 0 {
		f.fails--
		return repository.Projection{}, errors.New("deadlock detected")
	}
	if f.seen[e.BetID] {
		return repository.Projection{MatchID: e.MatchID, ObjectiveID: e.ObjectiveID}, nil
	}
	f.seen[e.BetID] = true
	f.totals[e.ObjectiveID] = f.totals[e.ObjectiveID].Add(e.Amount)
	f.totals[e.MatchID] = f.totals[e.MatchID].Add(e.Amount)
	return repository.Projection{
		Applied:     true,
		MatchID:     e.MatchID,
		ObjectiveID: e.ObjectiveID,
		Pot:         f.totals[e.MatchID],
		TotalBets:   f.totals[e.ObjectiveID],
	}, nil
}

type captureBroadcast struct{ updates []events.MatchUpdate }

func (c *captureBroadcast) PublishMatchUpdate(_ context.Context, u events.MatchUpdate) error {
	c.updates = append(c.updates, u)
	return nil
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func betMessage(t *testing.T, id string, amount string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(events.BetPlaced{
		BetID:       id,
		UserID:      "alice",
		MatchID:     "m1",
		ObjectiveID: "o1",
		Amount:      decimal.RequireFromString(amount),
		Odds:        130,
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte("m1"), Value: b}
}

func newProcessor(repo Projector) (*Processor, *captureBroadcast, *captureWriter) {
	bc := &captureBroadcast{}
	dlq := &captureWriter{}
	return &Processor{
		Log:       zap.NewNop(),
		Repo:      repo,
		Broadcast: bc,
		DLQ:       dlq,
		Retries:   3,
	}, bc, dlq
}

func TestHandle_ProjectsAndBroadcastsPot(t *testing.T) {
	repo := newProjector()
	p, bc, dlq := newProcessor(repo)
	projected := 0
	p.OnProjected = func() { projected++ }

	require.NoError(t, p.Handle(context.Background(), betMessage(t, "b1", "10")))
	require.NoError(t, p.Handle(context.Background(), betMessage(t, "b2", "5.5")))

	assert.Equal(t, 2, projected)
	require.Len(t, bc.updates, 2)
	last := bc.updates[1]
	assert.Equal(t, "pot", last.Kind)
	assert.Equal(t, "m1", last.MatchID)
	assert.Equal(t, "o1", last.ObjectiveID)
	assert.Equal(t, "15.5", last.Pot.String())
	assert.Equal(t, "15.5", last.TotalBets.String())
	assert.Empty(t, dlq.msgs)
}

func TestHandle_DuplicateIsNotCountedTwice(t *testing.T) {
	repo := newProjector()
	p, bc, _ := newProcessor(repo)
	dups := 0
	p.OnDuplicate = func() { dups++ }

	msg := betMessage(t, "b1", "10")
	require.NoError(t, p.Handle(context.Background(), msg))
	require.NoError(t, p.Handle(context.Background(), msg))

	assert.Equal(t, 1, dups)
	assert.Len(t, bc.updates, 1)
	assert.Equal(t, "10", repo.totals["o1"].String())
}

func TestHandle_InvalidPayloadGoesToDLQ(t *testing.T) {
	repo := newProjector()
	p, bc, dlq := newProcessor(repo)
	var stages []string
	p.OnError = func(s string) { stages = append(stages, s) }

	require.NoError(t, p.Handle(context.Background(), kafka.Message{Key: []byte("m1"), Value: []byte("{not json")}))
	require.NoError(t, p.Handle(context.Background(), betMessage(t, "b1", "0")))

	assert.Len(t, dlq.msgs, 2)
	assert.Equal(t, []byte("{not json"), dlq.msgs[0].Value)
	assert.Equal(t, []string{"decode", "validate"}, stages)
	assert.Zero(t, repo.calls)
	assert.Empty(t, bc.updates)
}

func TestHandle_RetriesBeforeDLQ(t *testing.T) {
	repo := newProjector()
	repo.fails = 2
	p, _, dlq := newProcessor(repo)

	require.NoError(t, p.Handle(context.Background(), betMessage(t, "b1", "10")))
	assert.Equal(t, 3, repo.calls)
	assert.Empty(t, dlq.msgs)

	repo.fails = 10
	sent := 0
	p.OnDLQ = func() { sent++ }
	require.NoError(t, p.Handle(context.Background(), betMessage(t, "b2", "10")))
	assert.Equal(t, 1, sent)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, []byte("m1"), dlq.msgs[0].Key)
}

func TestHandle_DLQFailureKeepsMessageUncommitted(t *testing.T) {
	p, _, dlq := newProcessor(newProjector())
	dlq.err = errors.New("broker down")

	err := p.Handle(context.Background(), kafka.Message{Value: []byte("oops")})
	assert.Error(t, err)
}

type scriptedReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func TestRun_CommitsHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, _, _ := newProcessor(newProjector())
	reader := &scriptedReader{
		msgs:   []kafka.Message{betMessage(t, "b1", "1"), betMessage(t, "b2", "2")},
		cancel: cancel,
	}
	p.Reader = reader
	consumed := 0
	p.OnConsumed = func() { consumed++ }

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, consumed)
	assert.Len(t, reader.committed, 2)
}
