package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const txCols = `id, portfolio_id, symbol, side, shares, price, fee, cash_after, executed_at, note`

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		var (
			rec              Transaction
			side             string
			price, fee, cash string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.PortfolioID,
			&rec.Symbol,
			&side,
			&rec.Shares,
			&price,
			&fee,
			&cash,
			&rec.ExecutedAt,
			&rec.Note,
		); err != nil {
			return nil, err
		}
		rec.Side = Side(side)

		var err error
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transaction %s: bad price: %w", rec.ID, err)
		}
		if rec.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("transaction %s: bad fee: %w", rec.ID, err)
		}
		if rec.CashAfter, err = decimal.NewFromString(cash); err != nil {
			return nil, fmt.Errorf("transaction %s: bad cash_after: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Transactions returns a portfolio's full trade history, oldest first.
func (s *SQLite) Transactions(portfolioID string) ([]Transaction, error) {
	rows, err := s.db.Query(`
		SELECT `+txCols+`
		FROM transactions
		WHERE portfolio_id = ?
		ORDER BY executed_at ASC, id ASC`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// TransactionsBetween returns trades executed within [start, end),
// oldest first.
func (s *SQLite) TransactionsBetween(portfolioID string, start, end time.Time) ([]Transaction, error) {
	rows, err := s.db.Query(`
		SELECT `+txCols+`
		FROM transactions
		WHERE portfolio_id = ? AND executed_at >= ? AND executed_at < ?
		ORDER BY executed_at ASC, id ASC`, portfolioID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}
