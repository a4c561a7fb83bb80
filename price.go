package valuation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// London listed instruments are often quoted in pence.
var penceCodes = map[string]struct{}{
	"GBp": {},
	"GBX": {},
}

var penceToPound = decimal.New(1, -2)

func isPence(code string) bool {
	_, ok := penceCodes[code]
	return ok
}

// NormalizePrice returns a raw quote in its canonical currency: pence quotes
// are rescaled to pounds, everything else passes through unchanged.
func NormalizePrice(raw Money) Money {
	if isPence(raw.Currency()) {
		return Money{value: raw.value.Mul(penceToPound), cur: "GBP"}
	}
	return raw
}

// Quote is the latest known price of an asset, as returned by a price provider.
type Quote struct {
	Price     Money
	FetchedAt time.Time
}

// Converter converts amounts between currencies using a RateProvider.
// The zero value converts only between identical currencies.
type Converter struct {
	Rates  RateProvider
	Logger zerolog.Logger
}

// Convert returns amount expressed in currency to. Amounts in pence are
// normalized first. ok is false when no rate is available, which is not an
// error: the converted value is unknown.
func (c Converter) Convert(ctx context.Context, amount Money, to string) (converted Money, ok bool, err error) {
	amount = NormalizePrice(amount)
	if amount.Currency() == to {
		return amount, true, nil
	}
	if isPence(to) {
		pounds, ok, err := c.Convert(ctx, amount, "GBP")
		if !ok || err != nil {
			return Money{}, ok, err
		}
		return Money{value: pounds.value.Div(penceToPound), cur: to}, true, nil
	}
	if c.Rates == nil {
		return Money{}, false, nil
	}
	rate, err := c.Rates.Rate(ctx, amount.Currency(), to)
	if err != nil {
		return Money{}, false, err
	}
	if rate == nil || !rate.IsPositive() {
		return Money{}, false, nil
	}
	return Money{value: amount.value.Mul(*rate), cur: to}, true, nil
}

// Value is like Convert but treats provider errors as a missing rate, logging
// them instead.
func (c Converter) Value(ctx context.Context, amount Money, to string) (Money, bool) {
	converted, ok, err := c.Convert(ctx, amount, to)
	if err != nil {
		c.Logger.Warn().Err(err).Str("from", amount.Currency()).Str("to", to).Msg("exchange rate lookup failed")
		return Money{}, false
	}
	if !ok {
		c.Logger.Debug().Str("from", amount.Currency()).Str("to", to).Msg("no exchange rate available")
	}
	return converted, ok
}
