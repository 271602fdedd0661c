package account

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"tinyex.com/internal/matching"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Account is one trader: cash, holdings and every order placed, oldest first.
// Fills arrive from several instrument actors at once.
type Account struct {
	mu      sync.Mutex
	name    string
	cash    float64
	shares  map[string]int64
	orders  []*matching.Order
	initial int64 // holding of a ticker not traded yet
}

func (a *Account) Name() string { return a.name }

func (a *Account) Cash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

func (a *Account) Shares(ticker string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holding(ticker)
}

func (a *Account) holding(ticker string) int64 {
	if n, ok := a.shares[ticker]; ok {
		return n
	}
	return a.initial
}

func (a *Account) Orders() []*matching.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*matching.Order(nil), a.orders...)
}

// ViewOrders renders the order history as numbered status lines,
// "1. AAPL LMT BUY $10.00 5/10 PARTIAL".
func (a *Account) ViewOrders() []string {
	orders := a.Orders()
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = fmt.Sprintf("%d. %s", i+1, o)
	}
	return out
}

type Snapshot struct {
	Name   string           `json:"name"`
	Cash   float64          `json:"cash"`
	Shares map[string]int64 `json:"shares"`
	Orders []string         `json:"orders"`
}

func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	s := Snapshot{Name: a.name, Cash: a.cash, Shares: make(map[string]int64, len(a.shares))}
	for t, n := range a.shares {
		s.Shares[t] = n
	}
	a.mu.Unlock()
	s.Orders = a.ViewOrders()
	return s
}

type Config struct {
	InitialCash   float64
	InitialShares int64
}

// Registry creates accounts on first use. It settles fills and keeps order
// history for the engine.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	cfg      Config
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{accounts: make(map[string]*Account, 64), cfg: cfg}
}

func (r *Registry) Lookup(name string) (*Account, bool) {
	r.mu.RLock()
	a, ok := r.accounts[name]
	r.mu.RUnlock()
	return a, ok
}

// Get returns the account of name, opening it with the configured balances
// if needed.
func (r *Registry) Get(name string) *Account {
	if a, ok := r.Lookup(name); ok {
		return a
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[name]; ok {
		return a
	}
	a := &Account{
		name:    name,
		cash:    r.cfg.InitialCash,
		shares:  make(map[string]int64, 4),
		initial: r.cfg.InitialShares,
	}
	r.accounts[name] = a
	return a
}

// Names returns every account name in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.accounts))
	for n := range r.accounts {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) OnBuyFill(owner, ticker string, qty int64, price float64) {
	a := r.Get(owner)
	a.mu.Lock()
	a.cash -= float64(qty) * price
	a.shares[ticker] = a.holding(ticker) + qty
	a.mu.Unlock()
}

func (r *Registry) OnSellFill(owner, ticker string, qty int64, price float64) {
	a := r.Get(owner)
	a.mu.Lock()
	a.cash += float64(qty) * price
	a.shares[ticker] = a.holding(ticker) - qty
	a.mu.Unlock()
}

func (r *Registry) Record(o *matching.Order) {
	a := r.Get(o.Owner)
	a.mu.Lock()
	a.orders = append(a.orders, o)
	a.mu.Unlock()
}

func (r *Registry) ViewOrders(owner string) []string {
	a, ok := r.Lookup(owner)
	if !ok {
		return nil
	}
	return a.ViewOrders()
}

// CanBuy checks that owner holds cost in cash. Nothing is reserved, so two
// orders checked back to back may still overdraw the account.
func (r *Registry) CanBuy(owner string, cost float64) error {
	if cash := r.Get(owner).Cash(); cash < cost {
		return fmt.Errorf("%w: need $%.2f, have $%.2f", ErrInsufficientFunds, cost, cash)
	}
	return nil
}

func (r *Registry) CanSell(owner, ticker string, qty int64) error {
	if held := r.Get(owner).Shares(ticker); held < qty {
		return fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientShares, qty, ticker, held)
	}
	return nil
}
