package repo

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	matchColumns = []string{"id", "title", "description", "game_code", "status", "max_players", "current_players",
		"player_ids", "pot", "rollover_pot", "created_by", "created_at", "updated_at", "start_date", "end_date"}
	objectiveColumns = []string{"id", "match_id", "title", "description", "type", "parameters", "base_odds",
		"calculated_odds", "total_bets", "winner", "completed", "created_at"}
	betColumns = []string{"id", "user_id", "match_id", "objective_id", "amount", "odds", "potential_payout",
		"status", "created_at", "resolved_at"}
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestGetMatch_ScansArraysAndNullDates(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`FROM matches WHERE id=\$1`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(matchColumns).
			AddRow("m1", "Friday", "", "ABC", "open", 4, 2, "{p1,p2}", "35.5", "10", "admin", now, now, now, nil))

	m, err := p.GetMatch(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, m.PlayerIDs)
	assert.Equal(t, "35.5", m.Pot.String())
	assert.NotNil(t, m.StartDate)
	assert.Nil(t, m.EndDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMatch_NotFound(t *testing.T) {
	p, mock := newMock(t)
	mock.ExpectQuery(`FROM matches WHERE id=\$1`).WithArgs("nope").WillReturnRows(sqlmock.NewRows(matchColumns))

	_, err := p.GetMatch(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddPlayer_Full(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM matches WHERE id=\$1 FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(matchColumns).
			AddRow("m1", "Friday", "", "", "open", 2, 2, "{p1,p2}", "0", "0", "admin", now, now, nil, nil))
	mock.ExpectRollback()

	_, err := p.AddPlayer(context.Background(), "m1", "p3")
	assert.ErrorIs(t, err, ErrMatchFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddPlayer_AlreadyJoined(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM matches WHERE id=\$1 FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(matchColumns).
			AddRow("m1", "Friday", "", "", "open", 2, 2, "{p1,p2}", "0", "0", "admin", now, now, nil, nil))
	mock.ExpectCommit()

	m, err := p.AddPlayer(context.Background(), "m1", "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, m.CurrentPlayers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetObjective_DecodesParameters(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`FROM objectives WHERE id=\$1`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(objectiveColumns).
			AddRow("o1", "m1", "Shotguns", "", "item",
				[]byte(`{"itemType":"Shotgun","itemCount":3,"difficultyMultiplier":1}`),
				100, 130, "0", "", false, now))

	o, err := p.GetObjective(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, 3, o.Parameters.ItemCount)
	assert.Equal(t, "Shotgun", o.Parameters.ItemType)
	assert.Equal(t, int64(130), o.CalculatedOdds)
}

func TestResolveBet_AlreadyResolved(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(`UPDATE bets SET status=\$1, resolved_at=NOW\(\)`).
		WithArgs(BetWon, "b1").
		WillReturnRows(sqlmock.NewRows(betColumns))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := p.ResolveBet(context.Background(), "b1", BetWon)
	assert.ErrorIs(t, err, ErrBetNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveBet_Pending(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`UPDATE bets SET status=\$1, resolved_at=NOW\(\)`).
		WithArgs(BetLost, "b1").
		WillReturnRows(sqlmock.NewRows(betColumns).
			AddRow("b1", "alice", "m1", "o1", "10", 130, "1300", "lost", now, now))

	b, err := p.ResolveBet(context.Background(), "b1", BetLost)
	require.NoError(t, err)
	assert.Equal(t, BetLost, b.Status)
	assert.NotNil(t, b.ResolvedAt)
}

func TestUserRole(t *testing.T) {
	p, mock := newMock(t)
	mock.ExpectQuery(`SELECT role FROM users WHERE id=\$1`).
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))
	mock.ExpectQuery(`SELECT role FROM users WHERE id=\$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	role, err := p.UserRole(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	role, err = p.UserRole(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "user", role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
