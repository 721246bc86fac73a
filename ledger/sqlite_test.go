package ledger

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, path
}

func testPortfolio(id, owner, context string, cash int64) Portfolio {
	return Portfolio{
		ID:        id,
		OwnerID:   owner,
		ContextID: context,
		Cash:      decimal.NewFromInt(cash),
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	s, path := newTestSQLite(t)
	assert.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'
		AND name IN ('portfolios','holdings','transactions','league_members')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["portfolios"])
	assert.True(t, found["holdings"])
	assert.True(t, found["transactions"])
	assert.True(t, found["league_members"])
}

func TestSQLitePortfolioRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)

	p := testPortfolio("P1", "alice", PersonalContext, 10000)
	require.NoError(t, s.CreatePortfolio(p))

	got, err := s.Portfolio("P1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(10000)))

	byOwner, err := s.PortfolioByOwner("alice", PersonalContext)
	require.NoError(t, err)
	assert.Equal(t, "P1", byOwner.ID)

	_, err = s.Portfolio("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteDuplicatePortfolio(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)

	require.NoError(t, s.CreatePortfolio(testPortfolio("P1", "alice", PersonalContext, 10000)))

	// Same (owner, context) pair with a fresh id must still be rejected.
	err := s.CreatePortfolio(testPortfolio("P2", "alice", PersonalContext, 5000))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSQLiteExecTxCommit(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)
	require.NoError(t, s.CreatePortfolio(testPortfolio("P1", "alice", PersonalContext, 10000)))

	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	err := s.ExecTx("P1", func(tx Tx) error {
		if err := tx.SetCash("P1", decimal.NewFromInt(8500)); err != nil {
			return err
		}
		if err := tx.PutHolding(Holding{
			PortfolioID: "P1",
			Symbol:      "AAPL",
			Shares:      10,
			Basis:       decimal.NewFromInt(150),
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		return tx.AppendTransaction(Transaction{
			ID:          "T1",
			PortfolioID: "P1",
			Symbol:      "AAPL",
			Side:        Buy,
			Shares:      10,
			Price:       decimal.NewFromInt(150),
			Fee:         decimal.Zero,
			CashAfter:   decimal.NewFromInt(8500),
			ExecutedAt:  now,
		})
	})
	require.NoError(t, err)

	p, err := s.Portfolio("P1")
	require.NoError(t, err)
	assert.True(t, p.Cash.Equal(decimal.NewFromInt(8500)))

	h, err := s.Holding("P1", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.Shares)
	assert.True(t, h.Basis.Equal(decimal.NewFromInt(150)))

	txns, err := s.Transactions("P1")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, Buy, txns[0].Side)
	assert.True(t, txns[0].CashAfter.Equal(decimal.NewFromInt(8500)))
}

func TestSQLiteExecTxRollback(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)
	require.NoError(t, s.CreatePortfolio(testPortfolio("P1", "alice", PersonalContext, 10000)))

	boom := errors.New("boom")
	err := s.ExecTx("P1", func(tx Tx) error {
		if err := tx.SetCash("P1", decimal.NewFromInt(1)); err != nil {
			return err
		}
		if err := tx.PutHolding(Holding{
			PortfolioID: "P1", Symbol: "AAPL", Shares: 99,
			Basis: decimal.NewFromInt(1), UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Nothing from the failed unit is visible.
	p, err := s.Portfolio("P1")
	require.NoError(t, err)
	assert.True(t, p.Cash.Equal(decimal.NewFromInt(10000)))

	_, err = s.Holding("P1", "AAPL")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteTxReadsOwnWrites(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)
	require.NoError(t, s.CreatePortfolio(testPortfolio("P1", "alice", PersonalContext, 10000)))

	err := s.ExecTx("P1", func(tx Tx) error {
		if err := tx.SetCash("P1", decimal.NewFromInt(7777)); err != nil {
			return err
		}
		p, err := tx.Portfolio("P1")
		if err != nil {
			return err
		}
		if !p.Cash.Equal(decimal.NewFromInt(7777)) {
			return errors.New("tx did not observe its own cash write")
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestSQLiteTransactionsBetween(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)
	require.NoError(t, s.CreatePortfolio(testPortfolio("P1", "alice", PersonalContext, 10000)))

	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	for i, id := range []string{"T1", "T2", "T3"} {
		executed := base.Add(time.Duration(i) * 24 * time.Hour)
		require.NoError(t, s.ExecTx("P1", func(tx Tx) error {
			return tx.AppendTransaction(Transaction{
				ID: id, PortfolioID: "P1", Symbol: "AAPL", Side: Buy, Shares: 1,
				Price: decimal.NewFromInt(150), Fee: decimal.Zero,
				CashAfter: decimal.NewFromInt(10000), ExecutedAt: executed,
			})
		}))
	}

	// Half-open range: includes day one, excludes day three.
	got, err := s.TransactionsBetween("P1", base, base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "T1", got[0].ID)
	assert.Equal(t, "T2", got[1].ID)
}

func TestSQLiteLeagueSnapshotAndCascade(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)

	joined := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddMember(LeagueMember{LeagueID: "L1", UserID: "alice", Admin: true, JoinedAt: joined}))
	require.NoError(t, s.AddMember(LeagueMember{LeagueID: "L1", UserID: "bob", JoinedAt: joined.Add(time.Minute)}))
	require.NoError(t, s.CreatePortfolio(testPortfolio("P1", "alice", "L1", 10000)))
	require.NoError(t, s.CreatePortfolio(testPortfolio("P2", "bob", "L1", 10000)))

	require.NoError(t, s.ExecTx("P1", func(tx Tx) error {
		return tx.PutHolding(Holding{
			PortfolioID: "P1", Symbol: "AAPL", Shares: 5,
			Basis: decimal.NewFromInt(150), UpdatedAt: joined,
		})
	}))

	states, err := s.LeagueSnapshot("L1")
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "alice", states[0].Member.UserID)
	require.Len(t, states[0].Holdings, 1)
	assert.Equal(t, "AAPL", states[0].Holdings[0].Symbol)

	_, err = s.LeagueSnapshot("empty-league")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting the league removes members, portfolios, holdings, history.
	require.NoError(t, s.DeleteLeague("L1"))

	_, err = s.Portfolio("P1")
	assert.ErrorIs(t, err, ErrNotFound)
	members, err := s.Members("L1")
	require.NoError(t, err)
	assert.Empty(t, members)
	txns, err := s.Transactions("P1")
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestSQLiteDuplicateMember(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)

	m := LeagueMember{LeagueID: "L1", UserID: "alice", JoinedAt: time.Now().UTC()}
	require.NoError(t, s.AddMember(m))
	assert.ErrorIs(t, s.AddMember(m), ErrAlreadyExists)
}

func TestSQLiteRemoveMember(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)

	m := LeagueMember{LeagueID: "L1", UserID: "alice", JoinedAt: time.Now().UTC()}
	require.NoError(t, s.AddMember(m))
	require.NoError(t, s.RemoveMember("L1", "alice"))

	members, err := s.Members("L1")
	require.NoError(t, err)
	assert.Empty(t, members)

	// Removing again, or removing an unknown member, is ErrNotFound.
	assert.ErrorIs(t, s.RemoveMember("L1", "alice"), ErrNotFound)
	assert.ErrorIs(t, s.RemoveMember("L1", "bob"), ErrNotFound)

	// The member can be added back afterwards.
	assert.NoError(t, s.AddMember(m))
}
