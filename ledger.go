package valuation

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetQuote is the latest quote of an asset.
type AssetQuote struct {
	AssetID string
	Quote
}

// ExchangeRate is the number of To units worth one From unit.
type ExchangeRate struct {
	From, To string
	Rate     decimal.Decimal
	AsOf     time.Time
}

// Ledger is the persisted content of a portfolio: the operation ledger and
// the reference data it is valued with.
type Ledger struct {
	Assets     []Asset
	Quotes     []AssetQuote
	Rates      []ExchangeRate
	Goals      []Goal
	Operations []Operation
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger { return &Ledger{} }

// Operations of a user, sorted in replay order, deleted ones included.
func (l *Ledger) UserOperations(userID string) []Operation {
	var ops []Operation
	for _, op := range l.Operations {
		if op.UserID == userID {
			ops = append(ops, op)
		}
	}
	SortOperations(ops)
	return ops
}
