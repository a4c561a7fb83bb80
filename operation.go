package valuation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OperationType is the kind of an InvestmentOperation.
type OperationType string

const (
	Buy      OperationType = "BUY"
	Sell     OperationType = "SELL"
	Dividend OperationType = "DIVIDEND"
	Fee      OperationType = "FEE"
	Split    OperationType = "SPLIT"
)

// ParseOperationType parses a case insensitive operation type.
func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case Buy, Sell, Dividend, Fee, Split:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown operation type %q", ErrInvalidOperation, s)
	}
}

// Operation is an immutable ledger entry owned by a user and an asset.
//
// Quantity holds units of the asset, or the ratio for a Split. PricePerUnit
// holds the unit price, or the total cash amount for a Dividend. Amounts are
// expressed in the operation currency, carried by PricePerUnit and Fees.
type Operation struct {
	ID           string
	UserID       string
	AssetID      string
	Type         OperationType
	Quantity     Quantity
	PricePerUnit Money
	Fees         Money
	OccurredAt   time.Time
	TotalAmount  Money // for display only, never used by replay
	Seq          int64 // insertion order, breaks OccurredAt ties
	Deleted      bool
}

// NewOperation creates an operation and derives its TotalAmount.
// Fees are expressed in the same currency as the price.
func NewOperation(userID, assetID string, typ OperationType, quantity Quantity, pricePerUnit Money, fees decimal.Decimal, occurredAt time.Time) Operation {
	op := Operation{
		UserID:       userID,
		AssetID:      assetID,
		Type:         typ,
		Quantity:     quantity,
		PricePerUnit: pricePerUnit,
		Fees:         M(fees, pricePerUnit.Currency()),
		OccurredAt:   occurredAt,
	}
	op.TotalAmount = op.total()
	return op
}

// Currency returns the ISO code of the amounts of this operation.
func (op Operation) Currency() string { return op.PricePerUnit.Currency() }

// total computes the display amount of an operation.
func (op Operation) total() Money {
	switch op.Type {
	case Buy:
		return op.PricePerUnit.Mul(op.Quantity).Add(op.Fees)
	case Sell:
		return op.PricePerUnit.Mul(op.Quantity).Sub(op.Fees)
	case Dividend:
		return op.PricePerUnit
	case Fee:
		return op.PricePerUnit.Add(op.Fees)
	default:
		return M(0, op.Currency())
	}
}

// Check validates the intrinsic fields of an operation, independently of the
// rest of the ledger.
func (op Operation) Check() error {
	var errs []string
	if op.AssetID == "" {
		errs = append(errs, "missing asset")
	}
	if _, err := ParseOperationType(string(op.Type)); err != nil {
		errs = append(errs, fmt.Sprintf("unknown type %q", op.Type))
	}
	if err := ValidateCurrency(op.Currency()); err != nil {
		errs = append(errs, err.Error())
	}
	if op.Fees.IsNegative() {
		errs = append(errs, "fees must not be negative")
	}
	switch op.Type {
	case Buy, Sell:
		if !op.Quantity.IsPositive() {
			errs = append(errs, "quantity must be positive")
		}
		if op.PricePerUnit.IsNegative() {
			errs = append(errs, "price must not be negative")
		}
	case Split:
		if !op.Quantity.IsPositive() {
			errs = append(errs, "split ratio must be positive")
		}
	}
	if op.OccurredAt.IsZero() {
		errs = append(errs, "missing date")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOperation, strings.Join(errs, "; "))
	}
	return nil
}

// compareOperations orders operations by OccurredAt, then by Seq.
func compareOperations(a, b Operation) int {
	if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}

// SortOperations sorts operations in replay order: ascending OccurredAt, ties
// broken by Seq. The sort is stable so equal keys keep their input order.
func SortOperations(ops []Operation) {
	slices.SortStableFunc(ops, compareOperations)
}
