package ledger

const schema = `
CREATE TABLE IF NOT EXISTS portfolios (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	context_id TEXT NOT NULL,
	cash TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE(owner_id, context_id)
);

CREATE TABLE IF NOT EXISTS holdings (
	portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
	symbol TEXT NOT NULL,
	shares INTEGER NOT NULL,
	basis TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (portfolio_id, symbol)
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	shares INTEGER NOT NULL,
	price TEXT NOT NULL,
	fee TEXT NOT NULL,
	cash_after TEXT NOT NULL,
	executed_at DATETIME NOT NULL,
	note TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS league_members (
	league_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	admin INTEGER NOT NULL DEFAULT 0,
	joined_at DATETIME NOT NULL,
	PRIMARY KEY (league_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions(portfolio_id, executed_at);
CREATE INDEX IF NOT EXISTS idx_portfolios_context ON portfolios(context_id);
`
