package valuation

import (
	"context"

	"github.com/shopspring/decimal"
)

// AssetType classifies assets in the portfolio summary (e.g. "STOCK", "ETF").
type AssetType string

// Asset describes an investable asset.
type Asset struct {
	ID       string
	Symbol   string
	Name     string
	Type     AssetType
	Currency string // home currency, in which cost and value are reported
}

// LedgerSource lists a user's operations.
type LedgerSource interface {
	// ListOperations returns the non deleted operations of a user, for a single
	// asset when assetID is not empty. The order is not significant.
	ListOperations(ctx context.Context, userID, assetID string) ([]Operation, error)
}

// AssetRepository resolves asset ids.
type AssetRepository interface {
	// GetAsset returns ErrNotFound when the asset does not exist.
	GetAsset(ctx context.Context, assetID string) (Asset, error)
}

// PriceProvider returns the latest known price of an asset.
type PriceProvider interface {
	// LatestPrice returns nil and no error when no price is known.
	LatestPrice(ctx context.Context, assetID string) (*Quote, error)
}

// RateProvider returns exchange rates.
type RateProvider interface {
	// Rate returns how many 'to' units are worth one 'from' unit, or nil when
	// no rate is available now.
	Rate(ctx context.Context, from, to string) (*decimal.Decimal, error)
}

// GoalStore persists investment goals.
type GoalStore interface {
	ListGoals(ctx context.Context, userID string) ([]Goal, error)

	// UpdateGoalFlags applies a conditional update: a flag set in update is only
	// written if it is currently unset, AchievedAt only if currently nil. It
	// returns the part of update that was actually applied, so that concurrent
	// evaluations never apply the same transition twice.
	UpdateGoalFlags(ctx context.Context, goalID string, update FlagUpdate) (FlagUpdate, error)
}

// Notifier delivers alerts to a user. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userID string, alert Alert) error
}
