package valuation

import "testing"

func holding(id string, typ AssetType, invested float64, value *Money) HoldingSummary {
	h := HoldingSummary{
		AssetID:       id,
		Symbol:        id,
		Type:          typ,
		Currency:      "EUR",
		Quantity:      Q(1),
		TotalInvested: EUR(invested),
		RealizedPnL:   EUR(1),
	}
	if value != nil {
		pnl := value.Sub(h.TotalInvested)
		h.CurrentValue = value
		h.UnrealizedPnL = &pnl
	}
	return h
}

func TestSummarize(t *testing.T) {
	s := Summarize("EUR", []HoldingSummary{
		holding("A", "STOCK", 100, moneyPtr(EUR(150))),
		holding("B", "ETF", 200, moneyPtr(EUR(250))),
		holding("C", "ETF", 100, moneyPtr(EUR(100))),
	})

	if !s.TotalInvested.Equal(EUR(400)) {
		t.Errorf("TotalInvested = %v, want 400", s.TotalInvested.Decimal())
	}
	if !s.TotalRealizedPnL.Equal(EUR(3)) {
		t.Errorf("TotalRealizedPnL = %v, want 3", s.TotalRealizedPnL.Decimal())
	}
	if s.TotalCurrentValue == nil || !s.TotalCurrentValue.Equal(EUR(500)) {
		t.Errorf("TotalCurrentValue = %v, want 500", s.TotalCurrentValue)
	}
	if s.TotalUnrealizedPnL == nil || !s.TotalUnrealizedPnL.Equal(EUR(100)) {
		t.Errorf("TotalUnrealizedPnL = %v, want 100", s.TotalUnrealizedPnL)
	}

	etf := s.ByAssetType["ETF"]
	if etf.Count != 2 || !etf.Invested.Equal(EUR(300)) || etf.CurrentValue == nil || !etf.CurrentValue.Equal(EUR(350)) {
		t.Errorf("ByAssetType[ETF] = %+v, want 2 holdings, 300 invested, 350 value", etf)
	}
	if got := s.AssetTypes(); len(got) != 2 || got[0] != "ETF" || got[1] != "STOCK" {
		t.Errorf("AssetTypes() = %v, want [ETF STOCK]", got)
	}

	if w := s.Holdings[1].Weight; w == nil || !w.Equal(P(50)) {
		t.Errorf("Holdings[1].Weight = %v, want 50%%", w)
	}
}

func TestSummarize_NullPropagation(t *testing.T) {
	s := Summarize("EUR", []HoldingSummary{
		holding("A", "STOCK", 100, moneyPtr(EUR(150))),
		holding("B", "STOCK", 200, nil),
		holding("C", "ETF", 100, moneyPtr(EUR(100))),
	})

	if s.TotalCurrentValue != nil {
		t.Errorf("TotalCurrentValue = %v, want nil", s.TotalCurrentValue)
	}
	if s.TotalUnrealizedPnL != nil {
		t.Errorf("TotalUnrealizedPnL = %v, want nil", s.TotalUnrealizedPnL)
	}
	if !s.TotalInvested.Equal(EUR(400)) {
		t.Errorf("TotalInvested = %v, want 400", s.TotalInvested.Decimal())
	}
	if v := s.ByAssetType["STOCK"].CurrentValue; v != nil {
		t.Errorf("ByAssetType[STOCK].CurrentValue = %v, want nil", v)
	}
	if v := s.ByAssetType["ETF"].CurrentValue; v == nil || !v.Equal(EUR(100)) {
		t.Errorf("ByAssetType[ETF].CurrentValue = %v, want 100", v)
	}
	for _, h := range s.Holdings {
		if h.Weight != nil {
			t.Errorf("%s Weight = %v, want nil", h.AssetID, h.Weight)
		}
	}
}

func TestSummarize_Excluded(t *testing.T) {
	s := Summarize("EUR", []HoldingSummary{holding("A", "STOCK", 100, moneyPtr(EUR(150)))})
	s.exclude(holding("B", "STOCK", 10, nil))

	if s.TotalCurrentValue != nil || s.TotalUnrealizedPnL != nil {
		t.Errorf("totals = %v, %v, want nil", s.TotalCurrentValue, s.TotalUnrealizedPnL)
	}
	if len(s.Excluded) != 1 || s.Excluded[0].AssetID != "B" {
		t.Errorf("Excluded = %v, want [B]", s.Excluded)
	}
	if s.ByAssetType["STOCK"].CurrentValue != nil {
		t.Errorf("ByAssetType[STOCK].CurrentValue = %v, want nil", s.ByAssetType["STOCK"].CurrentValue)
	}
}

func TestSortHoldings(t *testing.T) {
	hs := []HoldingSummary{
		holding("A", "STOCK", 100, moneyPtr(EUR(50))),
		holding("B", "STOCK", 300, nil),
		holding("C", "STOCK", 100, moneyPtr(EUR(200))),
		holding("D", "STOCK", 10, moneyPtr(EUR(200))),
	}
	SortHoldings(hs)
	var got string
	for _, h := range hs {
		got += h.AssetID
	}
	if want := "BCDA"; got != want {
		t.Errorf("SortHoldings() order = %s, want %s", got, want)
	}
}
