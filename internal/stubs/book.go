package stubs

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// rejection is a trade refusal; its text is shown to the user verbatim.
type rejection string

func (r rejection) Error() string { return string(r) }

const (
	errInsufficientCash     rejection = "Insufficient cash"
	errInsufficientHoldings rejection = "Insufficient holdings"
	errUnknownAction        rejection = "Unknown action"
)

type account struct {
	cash     decimal.Decimal
	holdings map[string]int
	history  []transactionWire
}

func (a *account) wire() portfolioWire {
	out := portfolioWire{
		Cash:     a.cash.InexactFloat64(),
		Holdings: make(map[string]int, len(a.holdings)),
		History:  make([]transactionWire, len(a.history)),
	}
	for k, v := range a.holdings {
		out.Holdings[k] = v
	}
	copy(out.History, a.history)
	return out
}

// Book holds every user's portfolio.
type Book struct {
	mu       sync.Mutex
	accounts map[string]*account
	now      func() time.Time
}

func NewBook() *Book {
	return &Book{accounts: map[string]*account{}, now: time.Now}
}

// caller holds mu
func (b *Book) account(userID string) *account {
	if userID == "" {
		userID = DefaultUser
	}
	a, ok := b.accounts[userID]
	if !ok {
		a = &account{cash: decimal.NewFromInt(StartingCash), holdings: map[string]int{}}
		b.accounts[userID] = a
	}
	return a
}

func (b *Book) portfolio(userID string) portfolioWire {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account(userID).wire()
}

// execute fills a manual trade at price. A sale that empties a position
// removes the symbol from holdings.
func (b *Book) execute(userID, symbol, action string, qty int, price decimal.Decimal) (portfolioWire, transactionWire, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a := b.account(userID)
	total := price.Mul(decimal.NewFromInt(int64(qty)))
	action = strings.ToUpper(action)

	switch action {
	case "BUY":
		if a.cash.LessThan(total) {
			return portfolioWire{}, transactionWire{}, errInsufficientCash
		}
		a.cash = a.cash.Sub(total)
		a.holdings[symbol] += qty
	case "SELL":
		if a.holdings[symbol] < qty {
			return portfolioWire{}, transactionWire{}, errInsufficientHoldings
		}
		a.cash = a.cash.Add(total)
		a.holdings[symbol] -= qty
		if a.holdings[symbol] == 0 {
			delete(a.holdings, symbol)
		}
	default:
		return portfolioWire{}, transactionWire{}, errUnknownAction
	}

	tx := transactionWire{
		Time:   b.now().Format(wireTime),
		Action: action,
		Symbol: symbol,
		Qty:    qty,
		Price:  price.InexactFloat64(),
		Total:  total.InexactFloat64(),
	}
	a.history = append(a.history, tx)
	return a.wire(), tx, nil
}
