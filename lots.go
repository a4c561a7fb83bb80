package valuation

import "slices"

// Lot is a quantity of an asset acquired at a specific cost per unit, used for
// FIFO cost basis matching.
type Lot struct {
	Quantity    Quantity
	CostPerUnit Money
}

// Cost returns the total cost of the lot.
func (l Lot) Cost() Money { return l.CostPerUnit.Mul(l.Quantity) }

// lots is a FIFO queue of lots, oldest first.
type lots []Lot

// cost returns the total cost of all lots.
func (l lots) cost(cur string) Money {
	total := M(0, cur)
	for _, lot := range l {
		total = total.Add(lot.Cost())
	}
	return total
}

// quantity returns the total quantity held in all lots.
func (l lots) quantity() Quantity {
	var total Quantity
	for _, lot := range l {
		total = total.Add(lot.Quantity)
	}
	return total
}

// sell consumes quantityToSell from the oldest lots. It returns the remaining
// lots, the cost basis of the consumed portions and the quantity actually
// consumed, which is lower than requested when the lots run out.
func (l lots) sell(quantityToSell Quantity, cur string) (remaining lots, costBasis Money, consumed Quantity) {
	costBasis = M(0, cur)
	for i, currentLot := range l {
		if quantityToSell.IsZero() {
			remaining = append(remaining, l[i:]...)
			break
		}
		if currentLot.Quantity.GreaterThan(quantityToSell) {
			// Partial sale from this lot
			costBasis = costBasis.Add(currentLot.CostPerUnit.Mul(quantityToSell))
			consumed = consumed.Add(quantityToSell)
			remaining = append(remaining, Lot{
				Quantity:    currentLot.Quantity.Sub(quantityToSell),
				CostPerUnit: currentLot.CostPerUnit,
			})
			quantityToSell = Quantity{}
			continue
		}
		// Full sale of this lot
		costBasis = costBasis.Add(currentLot.Cost())
		consumed = consumed.Add(currentLot.Quantity)
		quantityToSell = quantityToSell.Sub(currentLot.Quantity)
	}
	return remaining, costBasis, consumed
}

// split multiplies every lot quantity by ratio and divides its cost per unit,
// keeping each lot's total cost.
func (l lots) split(ratio Quantity) lots {
	out := make(lots, len(l))
	for i, lot := range l {
		out[i] = Lot{
			Quantity:    lot.Quantity.Mul(ratio),
			CostPerUnit: lot.CostPerUnit.Div(ratio),
		}
	}
	return out
}

// spread adds amount to the lots pro rata to their quantity: every unit held
// bears the same share of it.
func (l lots) spread(amount Money) lots {
	total := l.quantity()
	if !total.IsPositive() {
		return l
	}
	perUnit := amount.Div(total)
	out := make(lots, len(l))
	for i, lot := range l {
		out[i] = Lot{
			Quantity:    lot.Quantity,
			CostPerUnit: lot.CostPerUnit.Add(perUnit),
		}
	}
	return out
}

// Replay is the state of one asset's position after replaying its ledger.
type Replay struct {
	Currency    string   // currency of all amounts
	Quantity    Quantity // units currently held
	TotalCost   Money    // cost of the units currently held, fees included
	RealizedPnL Money    // gains locked by sells, dividends and fees on closed positions
	Lots        []Lot    // remaining lots, oldest first

	// Oversold is the quantity sold beyond what the lots held.
	Oversold Quantity
	// Skipped lists the operations ignored because they are deleted or not
	// expressed in the replay currency.
	Skipped []Operation
}

// AverageCost returns the cost per unit currently held, zero for a closed position.
func (r Replay) AverageCost() Money {
	if !r.Quantity.IsPositive() {
		return M(0, r.Currency)
	}
	return r.TotalCost.Div(r.Quantity)
}

// Closed reports whether no units are held anymore.
func (r Replay) Closed() bool { return !r.Quantity.IsPositive() }

// Reportable reports whether the asset must appear in holdings: either it is
// held, or it is closed with a non zero realized P&L.
func (r Replay) Reportable() bool {
	return r.Quantity.IsPositive() || !r.RealizedPnL.IsZero()
}

// ReplayOperations replays an asset's operations into lots using FIFO
// accounting. Amounts are expected in currency; when currency is empty the
// currency of the first operation is used.
//
// Operations are replayed in ascending OccurredAt order, ties broken by Seq
// then by input order. The input slice is not modified.
func ReplayOperations(currency string, operations []Operation) Replay {
	ops := slices.Clone(operations)
	SortOperations(ops)

	if currency == "" && len(ops) > 0 {
		currency = ops[0].Currency()
	}
	r := Replay{
		Currency:    currency,
		TotalCost:   M(0, currency),
		RealizedPnL: M(0, currency),
	}
	var queue lots

	for _, op := range ops {
		if op.Deleted || op.Currency() != currency {
			r.Skipped = append(r.Skipped, op)
			continue
		}
		switch op.Type {
		case Buy:
			if !op.Quantity.IsPositive() {
				continue
			}
			cost := op.PricePerUnit.Mul(op.Quantity).Add(op.Fees)
			queue = append(queue, Lot{
				Quantity:    op.Quantity,
				CostPerUnit: op.PricePerUnit.Add(op.Fees.Div(op.Quantity)),
			})
			r.Quantity = r.Quantity.Add(op.Quantity)
			r.TotalCost = r.TotalCost.Add(cost)

		case Sell:
			if !op.Quantity.IsPositive() {
				continue
			}
			var costBasis Money
			var consumed Quantity
			queue, costBasis, consumed = queue.sell(op.Quantity, currency)
			proceeds := op.PricePerUnit.Mul(op.Quantity).Sub(op.Fees)
			r.RealizedPnL = r.RealizedPnL.Add(proceeds.Sub(costBasis))
			r.Quantity = r.Quantity.Sub(consumed)
			r.TotalCost = r.TotalCost.Sub(costBasis)
			r.Oversold = r.Oversold.Add(op.Quantity.Sub(consumed))

		case Dividend:
			r.RealizedPnL = r.RealizedPnL.Add(op.PricePerUnit)

		case Split:
			if !op.Quantity.IsPositive() {
				continue
			}
			r.Quantity = r.Quantity.Mul(op.Quantity)
			queue = queue.split(op.Quantity)

		case Fee:
			amount := op.PricePerUnit.Add(op.Fees)
			if len(queue) == 0 {
				r.RealizedPnL = r.RealizedPnL.Sub(amount)
				continue
			}
			queue = queue.spread(amount)
			r.TotalCost = r.TotalCost.Add(amount)
		}
	}
	r.Lots = queue
	if len(queue) == 0 {
		// closed positions carry no residual cost from rounding
		r.TotalCost = M(0, currency)
	}
	return r
}
