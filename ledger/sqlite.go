package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLite is the durable Store implementation. Writes go through SQLite
// transactions, which provide the all-or-nothing guarantee ExecTx promises.
// Decimal values are stored as TEXT to avoid float drift.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the ledger database at path. The busy
// timeout covers short write contention between the exchange engine and
// leaderboard reads.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

const portfolioCols = `id, owner_id, context_id, cash, created_at`

func scanPortfolio(row *sql.Row) (Portfolio, error) {
	var (
		p    Portfolio
		cash string
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.ContextID, &cash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Portfolio{}, ErrNotFound
		}
		return Portfolio{}, err
	}
	if p.Cash, err = decimal.NewFromString(cash); err != nil {
		return Portfolio{}, fmt.Errorf("portfolio %s: bad cash value: %w", p.ID, err)
	}
	return p, nil
}

func getPortfolio(q rowQuerier, id string) (Portfolio, error) {
	return scanPortfolio(q.QueryRow(
		`SELECT `+portfolioCols+` FROM portfolios WHERE id = ?`, id))
}

func getHolding(q rowQuerier, portfolioID, symbol string) (Holding, error) {
	var (
		h     Holding
		basis string
	)
	row := q.QueryRow(`
		SELECT portfolio_id, symbol, shares, basis, updated_at
		FROM holdings
		WHERE portfolio_id = ? AND symbol = ?`, portfolioID, symbol)

	err := row.Scan(&h.PortfolioID, &h.Symbol, &h.Shares, &basis, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Holding{}, ErrNotFound
		}
		return Holding{}, err
	}
	if h.Basis, err = decimal.NewFromString(basis); err != nil {
		return Holding{}, fmt.Errorf("holding %s/%s: bad basis: %w", portfolioID, symbol, err)
	}
	return h, nil
}

func (s *SQLite) CreatePortfolio(p Portfolio) error {
	_, err := s.db.Exec(`
		INSERT INTO portfolios (id, owner_id, context_id, cash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.ContextID, p.Cash.String(), p.CreatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *SQLite) Portfolio(id string) (Portfolio, error) {
	return getPortfolio(s.db, id)
}

func (s *SQLite) PortfolioByOwner(ownerID, contextID string) (Portfolio, error) {
	return scanPortfolio(s.db.QueryRow(
		`SELECT `+portfolioCols+` FROM portfolios WHERE owner_id = ? AND context_id = ?`,
		ownerID, contextID))
}

func (s *SQLite) Holding(portfolioID, symbol string) (Holding, error) {
	return getHolding(s.db, portfolioID, symbol)
}

func (s *SQLite) Holdings(portfolioID string) ([]Holding, error) {
	rows, err := s.db.Query(`
		SELECT portfolio_id, symbol, shares, basis, updated_at
		FROM holdings
		WHERE portfolio_id = ?
		ORDER BY symbol ASC`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHoldings(rows)
}

func collectHoldings(rows *sql.Rows) ([]Holding, error) {
	var out []Holding
	for rows.Next() {
		var (
			h     Holding
			basis string
		)
		if err := rows.Scan(&h.PortfolioID, &h.Symbol, &h.Shares, &basis, &h.UpdatedAt); err != nil {
			return nil, err
		}
		var err error
		if h.Basis, err = decimal.NewFromString(basis); err != nil {
			return nil, fmt.Errorf("holding %s/%s: bad basis: %w", h.PortfolioID, h.Symbol, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLite) AddMember(m LeagueMember) error {
	_, err := s.db.Exec(`
		INSERT INTO league_members (league_id, user_id, admin, joined_at)
		VALUES (?, ?, ?, ?)`,
		m.LeagueID, m.UserID, m.Admin, m.JoinedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *SQLite) RemoveMember(leagueID, userID string) error {
	res, err := s.db.Exec(`
		DELETE FROM league_members WHERE league_id = ? AND user_id = ?`,
		leagueID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Members(leagueID string) ([]LeagueMember, error) {
	rows, err := s.db.Query(`
		SELECT league_id, user_id, admin, joined_at
		FROM league_members
		WHERE league_id = ?
		ORDER BY joined_at ASC, user_id ASC`, leagueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeagueMember
	for rows.Next() {
		var m LeagueMember
		if err := rows.Scan(&m.LeagueID, &m.UserID, &m.Admin, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LeagueSnapshot reads members, portfolios, and holdings inside one
// read transaction so the scoring engine sees a consistent view even while
// trades commit concurrently.
func (s *SQLite) LeagueSnapshot(leagueID string) ([]MemberState, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	members, err := func() ([]LeagueMember, error) {
		rows, err := tx.Query(`
			SELECT league_id, user_id, admin, joined_at
			FROM league_members
			WHERE league_id = ?
			ORDER BY joined_at ASC, user_id ASC`, leagueID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []LeagueMember
		for rows.Next() {
			var m LeagueMember
			if err := rows.Scan(&m.LeagueID, &m.UserID, &m.Admin, &m.JoinedAt); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, rows.Err()
	}()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	states := make([]MemberState, 0, len(members))
	for _, m := range members {
		p, err := scanPortfolio(tx.QueryRow(
			`SELECT `+portfolioCols+` FROM portfolios WHERE owner_id = ? AND context_id = ?`,
			m.UserID, leagueID))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Member without a portfolio: joined but the portfolio
				// creation failed. Skip rather than fail the whole league.
				continue
			}
			return nil, err
		}

		rows, err := tx.Query(`
			SELECT portfolio_id, symbol, shares, basis, updated_at
			FROM holdings
			WHERE portfolio_id = ?
			ORDER BY symbol ASC`, p.ID)
		if err != nil {
			return nil, err
		}
		holdings, err := collectHoldings(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}

		states = append(states, MemberState{Member: m, Portfolio: p, Holdings: holdings})
	}

	return states, tx.Commit()
}

func (s *SQLite) DeleteLeague(leagueID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM transactions WHERE portfolio_id IN
			(SELECT id FROM portfolios WHERE context_id = ?)`, leagueID); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		DELETE FROM holdings WHERE portfolio_id IN
			(SELECT id FROM portfolios WHERE context_id = ?)`, leagueID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM portfolios WHERE context_id = ?`, leagueID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM league_members WHERE league_id = ?`, leagueID); err != nil {
		return err
	}

	return tx.Commit()
}

// sqliteTx adapts a *sql.Tx to the Tx mutation surface.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Portfolio(id string) (Portfolio, error) {
	return getPortfolio(t.tx, id)
}

func (t *sqliteTx) Holding(portfolioID, symbol string) (Holding, error) {
	return getHolding(t.tx, portfolioID, symbol)
}

func (t *sqliteTx) SetCash(portfolioID string, cash decimal.Decimal) error {
	res, err := t.tx.Exec(
		`UPDATE portfolios SET cash = ? WHERE id = ?`, cash.String(), portfolioID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) PutHolding(h Holding) error {
	_, err := t.tx.Exec(`
		INSERT INTO holdings (portfolio_id, symbol, shares, basis, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, symbol) DO UPDATE SET
			shares = excluded.shares,
			basis = excluded.basis,
			updated_at = excluded.updated_at`,
		h.PortfolioID, h.Symbol, h.Shares, h.Basis.String(), h.UpdatedAt,
	)
	return err
}

func (t *sqliteTx) AppendTransaction(rec Transaction) error {
	_, err := t.tx.Exec(`
		INSERT INTO transactions
		(id, portfolio_id, symbol, side, shares, price, fee, cash_after, executed_at, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PortfolioID, rec.Symbol, string(rec.Side), rec.Shares,
		rec.Price.String(), rec.Fee.String(), rec.CashAfter.String(),
		rec.ExecutedAt, rec.Note,
	)
	return err
}

// ExecTx runs fn inside a SQLite transaction. Any error from fn rolls the
// whole unit back; nothing partial ever becomes visible.
func (s *SQLite) ExecTx(portfolioID string, fn func(Tx) error) error {
	_ = portfolioID // exclusion is the exchange engine's job; SQLite gives atomicity

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
