package valuation

import "github.com/shopspring/decimal"

// Percent is an exact percentage value: 85 means 85%.
type Percent struct {
	value decimal.Decimal
}

// P creates a Percent from any supported numeric value.
func P[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) Percent {
	return Percent{value: newDecimal(value)}
}

var hundred = decimal.NewFromInt(100)

// percentOf returns part/whole*100. whole must not be zero.
func percentOf(part, whole Money) Percent {
	return Percent{value: part.Ratio(whole).Mul(hundred)}
}

func (p Percent) Decimal() decimal.Decimal          { return p.value }
func (p Percent) Equal(q Percent) bool              { return p.value.Equal(q.value) }
func (p Percent) GreaterThan(q Percent) bool        { return p.value.GreaterThan(q.value) }
func (p Percent) GreaterThanOrEqual(q Percent) bool { return p.value.GreaterThanOrEqual(q.value) }
func (p Percent) LessThan(q Percent) bool           { return p.value.LessThan(q.value) }
func (p Percent) Round(places int32) Percent        { return Percent{value: p.value.Round(places)} }
func (p Percent) MarshalJSON() ([]byte, error)      { return p.value.MarshalJSON() }
func (p *Percent) UnmarshalJSON(data []byte) error  { return p.value.UnmarshalJSON(data) }
func (p Percent) String() string                    { return p.value.StringFixed(2) + "%" }

// SignedString formats the percentage with an explicit sign, "-" for zero.
func (p Percent) SignedString() string {
	res := p.value.StringFixed(2)
	if res == "0.00" {
		return "-"
	}
	if p.value.IsPositive() {
		res = "+" + res
	}
	return res + "%"
}
