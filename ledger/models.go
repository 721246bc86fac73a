// Package ledger holds the durable trading-competition state: portfolios,
// holdings, the append-only transaction history, and league membership. The
// Store interface is the transactional boundary the exchange engine mutates
// through.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PersonalContext is the context id of a user's personal (non-league)
// portfolio. Any other context id is a league id.
const PersonalContext = "personal"

// Side is the closed set of trade directions.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Portfolio is one user's account within one context (personal or league).
// Cash never goes negative; the exchange engine enforces that inside the
// trade's atomic unit.
type Portfolio struct {
	ID        string
	OwnerID   string
	ContextID string
	Cash      decimal.Decimal
	CreatedAt time.Time
}

// League reports whether the portfolio belongs to a league context.
func (p Portfolio) League() bool { return p.ContextID != PersonalContext }

// Holding is the current position in one symbol for one portfolio. Shares
// never go negative. A fully sold-out position is retained as a zero row
// with a zero basis rather than deleted, so UpdatedAt keeps the time of the
// last position change.
type Holding struct {
	PortfolioID string
	Symbol      string
	Shares      int64
	Basis       decimal.Decimal
	UpdatedAt   time.Time
}

// MarketValue is shares x price.
func (h Holding) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(h.Shares))
}

// CostValue is shares x average cost basis, the valuation fallback when a
// quote is unavailable.
func (h Holding) CostValue() decimal.Decimal {
	return h.Basis.Mul(decimal.NewFromInt(h.Shares))
}

// Transaction is one executed trade. Rows are append-only: never mutated,
// never deleted while the owning portfolio exists. CashAfter is the
// portfolio's cash balance immediately after execution, recorded so history
// can be audited without replaying.
type Transaction struct {
	ID          string
	PortfolioID string
	Symbol      string
	Side        Side
	Shares      int64
	Price       decimal.Decimal
	Fee         decimal.Decimal
	CashAfter   decimal.Decimal
	ExecutedAt  time.Time
	Note        string
}

// LeagueMember links a user to a league. Admin members may manage the
// league; everyone listed holds a league portfolio and appears on the
// leaderboard.
type LeagueMember struct {
	LeagueID string
	UserID   string
	Admin    bool
	JoinedAt time.Time
}

// MemberState is one member's complete state, read in a single consistent
// pass for leaderboard scoring.
type MemberState struct {
	Member    LeagueMember
	Portfolio Portfolio
	Holdings  []Holding
}

func (t Transaction) String() string {
	return fmt.Sprintf("%s %s %d %s @ %s (fee %s, cash %s)",
		t.Side, t.Symbol, t.Shares, t.PortfolioID, t.Price, t.Fee, t.CashAfter)
}
