// Package valuation derives the state of an investment portfolio from an
// append-only ledger of operations (buy, sell, dividend, fee, split).
//
// Nothing derived is ever stored: every call replays the ledger.
//   - Lot replay: each asset's operations are replayed in date order into a
//     FIFO queue of lots, giving the held quantity, its cost and the realized
//     profit and loss (see ReplayOperations).
//   - Prices: raw quotes are normalized (London pence quotes become pounds)
//     and converted between currencies with a RateProvider (see Converter).
//   - Holdings: one HoldingSummary per asset, valued at its latest price.
//   - Portfolio: holdings summed into a PortfolioSummary in a reporting
//     currency, grouped by asset type.
//   - Goals: progress toward savings targets, and the one-shot 80% and 100%
//     alerts they trigger.
//
// Missing market data is never an error and never zero: amounts that cannot be
// computed are nil, and any total depending on one is nil too.
//
// The Engine wires these steps to the collaborators: a LedgerSource, an
// AssetRepository, a PriceProvider, a RateProvider, a GoalStore and a
// Notifier. The store, sqlstore and eodhd packages implement them.
package valuation
