package ledger

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is an in-memory Store used by tests and single-run simulations.
// ExecTx stages writes and applies them only when fn succeeds, so it gives
// the same all-or-nothing behavior as the SQLite store.
type Memory struct {
	mu         sync.RWMutex
	portfolios map[string]Portfolio
	byOwner    map[ownerKey]string
	holdings   map[string]map[string]Holding
	txns       map[string][]Transaction
	members    map[string][]LeagueMember
}

type ownerKey struct {
	owner   string
	context string
}

func NewMemory() *Memory {
	return &Memory{
		portfolios: make(map[string]Portfolio),
		byOwner:    make(map[ownerKey]string),
		holdings:   make(map[string]map[string]Holding),
		txns:       make(map[string][]Transaction),
		members:    make(map[string][]LeagueMember),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreatePortfolio(p Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ownerKey{p.OwnerID, p.ContextID}
	if _, ok := m.byOwner[key]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.portfolios[p.ID]; ok {
		return ErrAlreadyExists
	}
	m.portfolios[p.ID] = p
	m.byOwner[key] = p.ID
	return nil
}

func (m *Memory) Portfolio(id string) (Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.portfolios[id]
	if !ok {
		return Portfolio{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) PortfolioByOwner(ownerID, contextID string) (Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byOwner[ownerKey{ownerID, contextID}]
	if !ok {
		return Portfolio{}, ErrNotFound
	}
	return m.portfolios[id], nil
}

func (m *Memory) Holding(portfolioID, symbol string) (Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holdings[portfolioID][symbol]
	if !ok {
		return Holding{}, ErrNotFound
	}
	return h, nil
}

func (m *Memory) Holdings(portfolioID string) ([]Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedHoldings(m.holdings[portfolioID]), nil
}

func sortedHoldings(bySymbol map[string]Holding) []Holding {
	out := make([]Holding, 0, len(bySymbol))
	for _, h := range bySymbol {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (m *Memory) Transactions(portfolioID string) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transaction, len(m.txns[portfolioID]))
	copy(out, m.txns[portfolioID])
	return out, nil
}

func (m *Memory) AddMember(member LeagueMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.members[member.LeagueID] {
		if existing.UserID == member.UserID {
			return ErrAlreadyExists
		}
	}
	m.members[member.LeagueID] = append(m.members[member.LeagueID], member)
	return nil
}

func (m *Memory) RemoveMember(leagueID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.members[leagueID]
	for i, member := range members {
		if member.UserID == userID {
			m.members[leagueID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) Members(leagueID string) ([]LeagueMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LeagueMember, len(m.members[leagueID]))
	copy(out, m.members[leagueID])
	return out, nil
}

// LeagueSnapshot reads everything under one lock hold, so the scoring
// engine never sees a half-applied trade.
func (m *Memory) LeagueSnapshot(leagueID string) ([]MemberState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.members[leagueID]
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	states := make([]MemberState, 0, len(members))
	for _, member := range members {
		pid, ok := m.byOwner[ownerKey{member.UserID, leagueID}]
		if !ok {
			continue
		}
		states = append(states, MemberState{
			Member:    member,
			Portfolio: m.portfolios[pid],
			Holdings:  sortedHoldings(m.holdings[pid]),
		})
	}
	return states, nil
}

func (m *Memory) DeleteLeague(leagueID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, member := range m.members[leagueID] {
		key := ownerKey{member.UserID, leagueID}
		if pid, ok := m.byOwner[key]; ok {
			delete(m.portfolios, pid)
			delete(m.holdings, pid)
			delete(m.txns, pid)
			delete(m.byOwner, key)
		}
	}
	delete(m.members, leagueID)
	return nil
}

// memTx stages writes against a single portfolio. Reads see earlier staged
// writes; nothing touches the store until commit.
type memTx struct {
	store       *Memory
	portfolioID string

	cash     *decimal.Decimal
	holdings map[string]Holding
	appended []Transaction
}

func (t *memTx) Portfolio(id string) (Portfolio, error) {
	p, ok := t.store.portfolios[id]
	if !ok {
		return Portfolio{}, ErrNotFound
	}
	if t.cash != nil && id == t.portfolioID {
		p.Cash = *t.cash
	}
	return p, nil
}

func (t *memTx) Holding(portfolioID, symbol string) (Holding, error) {
	if h, ok := t.holdings[symbol]; ok {
		return h, nil
	}
	h, ok := t.store.holdings[portfolioID][symbol]
	if !ok {
		return Holding{}, ErrNotFound
	}
	return h, nil
}

func (t *memTx) SetCash(portfolioID string, cash decimal.Decimal) error {
	if _, ok := t.store.portfolios[portfolioID]; !ok {
		return ErrNotFound
	}
	t.cash = &cash
	return nil
}

func (t *memTx) PutHolding(h Holding) error {
	t.holdings[h.Symbol] = h
	return nil
}

func (t *memTx) AppendTransaction(rec Transaction) error {
	t.appended = append(t.appended, rec)
	return nil
}

// ExecTx runs fn against staged state and applies the result atomically.
// The store lock is held for the whole unit; per-portfolio fairness is the
// exchange engine's concern, not the store's.
func (m *Memory) ExecTx(portfolioID string, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, portfolioID: portfolioID, holdings: make(map[string]Holding)}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.cash != nil {
		p := m.portfolios[portfolioID]
		p.Cash = *tx.cash
		m.portfolios[portfolioID] = p
	}
	for _, h := range tx.holdings {
		bySymbol := m.holdings[h.PortfolioID]
		if bySymbol == nil {
			bySymbol = make(map[string]Holding)
			m.holdings[h.PortfolioID] = bySymbol
		}
		bySymbol[h.Symbol] = h
	}
	for _, rec := range tx.appended {
		m.txns[rec.PortfolioID] = append(m.txns[rec.PortfolioID], rec)
	}
	return nil
}
