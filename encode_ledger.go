package valuation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/etnz/valuation/date"
	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// RecordType identifies the kind of a line in a JSONL ledger.
type RecordType string

const (
	RecordAsset     RecordType = "asset"
	RecordQuote     RecordType = "quote"
	RecordRate      RecordType = "rate"
	RecordGoal      RecordType = "goal"
	RecordOperation RecordType = "operation"
)

// amountCmd is a specialized struct to read an amount stored in two fields.
type amountCmd struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (a amountCmd) Money() Money {
	return M(a.Amount, a.Currency)
}

func (a *amountCmd) unmarshal(data []byte) error {
	return json.Unmarshal(data, a)
}

// jsonOperation is the line form of an Operation. All amounts share the
// operation currency.
type jsonOperation struct {
	ID       string          `json:"id"`
	User     string          `json:"user"`
	Asset    string          `json:"asset"`
	Type     OperationType   `json:"type"`
	Date     time.Time       `json:"date"`
	Quantity Quantity        `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Fees     decimal.Decimal `json:"fees"`
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Seq      int64           `json:"seq"`
	Deleted  bool            `json:"deleted"`
}

type jsonAsset struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name"`
	Type     AssetType `json:"type"`
	Currency string    `json:"currency"`
}

type jsonQuote struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

type jsonRate struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Rate decimal.Decimal `json:"rate"`
	AsOf time.Time       `json:"asOf"`
}

type jsonGoal struct {
	ID           string          `json:"id"`
	User         string          `json:"user"`
	Name         string          `json:"name"`
	Scope        GoalScope       `json:"scope"`
	Asset        string          `json:"asset"`
	Target       decimal.Decimal `json:"target"`
	Currency     string          `json:"currency"`
	TargetDate   *date.Date      `json:"targetDate"`
	AlertAt80    bool            `json:"alertAt80"`
	AlertAt100   bool            `json:"alertAt100"`
	Alert80Sent  bool            `json:"alert80Sent"`
	Alert100Sent bool            `json:"alert100Sent"`
	AchievedAt   *time.Time      `json:"achievedAt"`
	Revision     int64           `json:"revision"`
}

// DecodeLedger decodes a ledger from a stream of JSONL data. Each line is an
// object whose "record" field tells its kind. Operations are sorted in replay
// order.
func DecodeLedger(r io.Reader) (*Ledger, error) {
	ledger := NewLedger()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}
		if err := ledger.decodeLine(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading from input: %w", err)
	}
	SortOperations(ledger.Operations)
	return ledger, nil
}

func (l *Ledger) decodeLine(line []byte) error {
	var identifier struct {
		Record RecordType `json:"record"`
	}
	if err := json.Unmarshal(line, &identifier); err != nil {
		return fmt.Errorf("could not identify record in %q: %w", string(line), err)
	}

	switch identifier.Record {
	case RecordAsset:
		var j jsonAsset
		if err := json.Unmarshal(line, &j); err != nil {
			return err
		}
		l.Assets = append(l.Assets, Asset{
			ID:       j.ID,
			Symbol:   j.Symbol,
			Name:     j.Name,
			Type:     j.Type,
			Currency: j.Currency,
		})

	case RecordQuote:
		var j jsonQuote
		if err := json.Unmarshal(line, &j); err != nil {
			return err
		}
		l.Quotes = append(l.Quotes, AssetQuote{
			AssetID: j.Asset,
			Quote:   Quote{Price: M(j.Price, j.Currency), FetchedAt: j.FetchedAt},
		})

	case RecordRate:
		var j jsonRate
		if err := json.Unmarshal(line, &j); err != nil {
			return err
		}
		l.Rates = append(l.Rates, ExchangeRate{From: j.From, To: j.To, Rate: j.Rate, AsOf: j.AsOf})

	case RecordGoal:
		var j jsonGoal
		if err := json.Unmarshal(line, &j); err != nil {
			return err
		}
		l.Goals = append(l.Goals, Goal{
			ID:           j.ID,
			UserID:       j.User,
			Name:         j.Name,
			Scope:        j.Scope,
			AssetID:      j.Asset,
			TargetAmount: M(j.Target, j.Currency),
			TargetDate:   j.TargetDate,
			AlertAt80:    j.AlertAt80,
			AlertAt100:   j.AlertAt100,
			Alert80Sent:  j.Alert80Sent,
			Alert100Sent: j.Alert100Sent,
			AchievedAt:   j.AchievedAt,
			Revision:     j.Revision,
		})

	case RecordOperation:
		var j jsonOperation
		if err := json.Unmarshal(line, &j); err != nil {
			return err
		}
		l.Operations = append(l.Operations, Operation{
			ID:           j.ID,
			UserID:       j.User,
			AssetID:      j.Asset,
			Type:         j.Type,
			Quantity:     j.Quantity,
			PricePerUnit: M(j.Price, j.Currency),
			Fees:         M(j.Fees, j.Currency),
			OccurredAt:   j.Date,
			TotalAmount:  M(j.Total, j.Currency),
			Seq:          j.Seq,
			Deleted:      j.Deleted,
		})

	default:
		return fmt.Errorf("unknown record type: %q", identifier.Record)
	}
	return nil
}

// EncodeLedger writes the ledger in JSONL format: assets, quotes, rates,
// goals, then operations in replay order. Keys keep a fixed order so that the
// output is stable and diff friendly.
func EncodeLedger(w io.Writer, ledger *Ledger) error {
	decimal.MarshalJSONWithoutQuotes = true

	var lines []*jsonObjectWriter
	for _, a := range ledger.Assets {
		lines = append(lines, encodeAsset(a))
	}
	for _, q := range ledger.Quotes {
		lines = append(lines, encodeQuote(q))
	}
	for _, r := range ledger.Rates {
		lines = append(lines, encodeRate(r))
	}
	for _, g := range ledger.Goals {
		lines = append(lines, encodeGoal(g))
	}
	SortOperations(ledger.Operations)
	for _, op := range ledger.Operations {
		lines = append(lines, encodeOperation(op))
	}

	for _, line := range lines {
		data, err := line.MarshalJSON()
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write ledger: %w", err)
		}
	}
	return nil
}

func record(t RecordType) *jsonObjectWriter {
	var w jsonObjectWriter
	w.Append("record", t)
	return &w
}

func encodeAsset(a Asset) *jsonObjectWriter {
	return record(RecordAsset).
		Append("id", a.ID).
		Optional("symbol", a.Symbol).
		Optional("name", a.Name).
		Optional("type", a.Type).
		Append("currency", a.Currency)
}

func encodeQuote(q AssetQuote) *jsonObjectWriter {
	return record(RecordQuote).
		Append("asset", q.AssetID).
		Append("price", q.Price.Decimal()).
		Append("currency", q.Price.Currency()).
		Optional("fetchedAt", q.FetchedAt)
}

func encodeRate(r ExchangeRate) *jsonObjectWriter {
	return record(RecordRate).
		Append("from", r.From).
		Append("to", r.To).
		Append("rate", r.Rate).
		Optional("asOf", r.AsOf)
}

func encodeGoal(g Goal) *jsonObjectWriter {
	return record(RecordGoal).
		Append("id", g.ID).
		Append("user", g.UserID).
		Append("name", g.Name).
		Append("scope", g.Scope).
		Optional("asset", g.AssetID).
		Append("target", g.TargetAmount.Decimal()).
		Append("currency", g.Currency()).
		Optional("targetDate", g.TargetDate).
		Optional("alertAt80", g.AlertAt80).
		Optional("alertAt100", g.AlertAt100).
		Optional("alert80Sent", g.Alert80Sent).
		Optional("alert100Sent", g.Alert100Sent).
		Optional("achievedAt", g.AchievedAt).
		Optional("revision", g.Revision)
}

func encodeOperation(op Operation) *jsonObjectWriter {
	return record(RecordOperation).
		Append("id", op.ID).
		Append("user", op.UserID).
		Append("asset", op.AssetID).
		Append("type", op.Type).
		Append("date", op.OccurredAt).
		Append("quantity", op.Quantity).
		Append("price", op.PricePerUnit.Decimal()).
		Optional("fees", op.Fees.Decimal()).
		Append("currency", op.Currency()).
		Append("total", op.TotalAmount.Decimal()).
		Optional("seq", op.Seq).
		Optional("deleted", op.Deleted)
}
