package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound means the requested portfolio, holding, or league does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists means a portfolio or membership with the same key has
	// already been created.
	ErrAlreadyExists = errors.New("already exists")
)

// Tx is the mutation surface available inside one atomic unit. Reads inside
// a Tx observe writes made earlier in the same Tx, which is what lets the
// exchange engine re-validate against current state immediately before
// committing.
type Tx interface {
	Portfolio(id string) (Portfolio, error)
	Holding(portfolioID, symbol string) (Holding, error)
	SetCash(portfolioID string, cash decimal.Decimal) error
	PutHolding(h Holding) error
	AppendTransaction(t Transaction) error
}

// Store is the durable ledger. Implementations must make ExecTx
// all-or-nothing: either every write in fn is visible afterwards or none
// are.
type Store interface {
	CreatePortfolio(p Portfolio) error
	Portfolio(id string) (Portfolio, error)
	PortfolioByOwner(ownerID, contextID string) (Portfolio, error)
	Holding(portfolioID, symbol string) (Holding, error)
	Holdings(portfolioID string) ([]Holding, error)
	Transactions(portfolioID string) ([]Transaction, error)

	AddMember(m LeagueMember) error
	RemoveMember(leagueID, userID string) error
	Members(leagueID string) ([]LeagueMember, error)

	// LeagueSnapshot reads every member's portfolio and holdings in one
	// consistent pass. Returns ErrNotFound for a league with no members.
	LeagueSnapshot(leagueID string) ([]MemberState, error)

	// DeleteLeague cascades: membership rows, league portfolios, their
	// holdings and transactions all go in one atomic unit.
	DeleteLeague(leagueID string) error

	// ExecTx runs fn inside one atomic unit scoped to a portfolio.
	ExecTx(portfolioID string, fn func(Tx) error) error

	Close() error
}
