// Package sqlstore implements the valuation collaborators on a SQLite
// database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/valuation"
	"github.com/etnz/valuation/date"
	"github.com/google/uuid"
	// import sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	id       TEXT PRIMARY KEY,
	symbol   TEXT NOT NULL DEFAULT '',
	name     TEXT NOT NULL DEFAULT '',
	type     TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS operations (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	user_id     TEXT NOT NULL,
	asset_id    TEXT NOT NULL,
	type        TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	price       TEXT NOT NULL,
	fees        TEXT NOT NULL,
	currency    TEXT NOT NULL,
	total       TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	deleted     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS operations_user ON operations (user_id, asset_id);
CREATE TABLE IF NOT EXISTS goals (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	scope         TEXT NOT NULL,
	asset_id      TEXT NOT NULL DEFAULT '',
	target        TEXT NOT NULL,
	currency      TEXT NOT NULL,
	target_date   TEXT,
	alert_at_80   INTEGER NOT NULL DEFAULT 0,
	alert_at_100  INTEGER NOT NULL DEFAULT 0,
	alert80_sent  INTEGER NOT NULL DEFAULT 0,
	alert100_sent INTEGER NOT NULL DEFAULT 0,
	achieved_at   TEXT,
	revision      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS quotes (
	asset_id   TEXT PRIMARY KEY,
	price      TEXT NOT NULL,
	currency   TEXT NOT NULL,
	fetched_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rates (
	from_currency TEXT NOT NULL,
	to_currency   TEXT NOT NULL,
	rate          TEXT NOT NULL,
	as_of         TEXT NOT NULL,
	PRIMARY KEY (from_currency, to_currency)
);
`

// Store is a SQLite backed LedgerSource, AssetRepository, PriceProvider,
// RateProvider and GoalStore.
type Store struct {
	db *sql.DB
}

// Open opens, and creates if needed, the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create schema in %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

// PutAsset adds or replaces an asset.
func (s *Store) PutAsset(ctx context.Context, a valuation.Asset) error {
	if a.ID == "" {
		return errors.New("asset id is required")
	}
	if err := valuation.ValidateCurrency(a.Currency); err != nil {
		return fmt.Errorf("asset %q: %w", a.ID, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO assets (id, symbol, name, type, currency) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Symbol, a.Name, string(a.Type), a.Currency)
	return err
}

// GetAsset implements valuation.AssetRepository.
func (s *Store) GetAsset(ctx context.Context, assetID string) (valuation.Asset, error) {
	var a valuation.Asset
	var typ string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, name, type, currency FROM assets WHERE id = ?`, assetID).
		Scan(&a.ID, &a.Symbol, &a.Name, &typ, &a.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return valuation.Asset{}, fmt.Errorf("asset %q: %w", assetID, valuation.ErrNotFound)
	}
	if err != nil {
		return valuation.Asset{}, err
	}
	a.Type = valuation.AssetType(typ)
	return a, nil
}

// Assets returns all assets sorted by id.
func (s *Store) Assets(ctx context.Context) ([]valuation.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, name, type, currency FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []valuation.Asset
	for rows.Next() {
		var a valuation.Asset
		var typ string
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &typ, &a.Currency); err != nil {
			return nil, err
		}
		a.Type = valuation.AssetType(typ)
		res = append(res, a)
	}
	return res, rows.Err()
}

// PutQuote records the latest quote of an asset.
func (s *Store) PutQuote(ctx context.Context, assetID string, q valuation.Quote) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO quotes (asset_id, price, currency, fetched_at) VALUES (?, ?, ?, ?)`,
		assetID, q.Price.Decimal().String(), q.Price.Currency(), formatTime(q.FetchedAt))
	return err
}

// LatestPrice implements valuation.PriceProvider.
func (s *Store) LatestPrice(ctx context.Context, assetID string) (*valuation.Quote, error) {
	var price, cur, at string
	err := s.db.QueryRowContext(ctx,
		`SELECT price, currency, fetched_at FROM quotes WHERE asset_id = ?`, assetID).
		Scan(&price, &cur, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price of %q: %w", assetID, err)
	}
	fetched, err := parseTime(at)
	if err != nil {
		return nil, fmt.Errorf("invalid quote date of %q: %w", assetID, err)
	}
	return &valuation.Quote{Price: valuation.M(p, cur), FetchedAt: fetched}, nil
}

// PutRate records an exchange rate: one from is worth rate to.
func (s *Store) PutRate(ctx context.Context, from, to string, rate decimal.Decimal, asOf time.Time) error {
	if !rate.IsPositive() {
		return fmt.Errorf("rate %s/%s must be positive", from, to)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rates (from_currency, to_currency, rate, as_of) VALUES (?, ?, ?, ?)`,
		from, to, rate.String(), formatTime(asOf))
	return err
}

// Rate implements valuation.RateProvider. The inverse of a known rate is
// used when the direct one is missing.
func (s *Store) Rate(ctx context.Context, from, to string) (*decimal.Decimal, error) {
	r, err := s.rate(ctx, from, to)
	if err != nil || r != nil {
		return r, err
	}
	r, err = s.rate(ctx, to, from)
	if err != nil || r == nil {
		return nil, err
	}
	inv := decimal.NewFromInt(1).Div(*r)
	return &inv, nil
}

func (s *Store) rate(ctx context.Context, from, to string) (*decimal.Decimal, error) {
	var txt string
	err := s.db.QueryRowContext(ctx,
		`SELECT rate FROM rates WHERE from_currency = ? AND to_currency = ?`, from, to).Scan(&txt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r, err := decimal.NewFromString(txt)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %s/%s: %w", from, to, err)
	}
	return &r, nil
}

// AppendOperation records a new operation. It assigns its id, when empty,
// and its sequence number.
func (s *Store) AppendOperation(ctx context.Context, op valuation.Operation) (valuation.Operation, error) {
	if err := op.Check(); err != nil {
		return valuation.Operation{}, err
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (id, user_id, asset_id, type, quantity, price, fees, currency, total, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.UserID, op.AssetID, string(op.Type),
		op.Quantity.Decimal().String(), op.PricePerUnit.Decimal().String(), op.Fees.Decimal().String(),
		op.Currency(), op.TotalAmount.Decimal().String(), formatTime(op.OccurredAt))
	if err != nil {
		return valuation.Operation{}, fmt.Errorf("cannot insert operation %q: %w", op.ID, err)
	}
	if op.Seq, err = res.LastInsertId(); err != nil {
		return valuation.Operation{}, err
	}
	op.Deleted = false
	return op, nil
}

// DeleteOperation soft-deletes an operation.
func (s *Store) DeleteOperation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE operations SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return fmt.Errorf("operation %q: %w", id, valuation.ErrNotFound)
	}
	return nil
}

// ListOperations implements valuation.LedgerSource.
func (s *Store) ListOperations(ctx context.Context, userID, assetID string) ([]valuation.Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, user_id, asset_id, type, quantity, price, fees, currency, total, occurred_at
		 FROM operations
		 WHERE deleted = 0 AND user_id = ? AND (? = '' OR asset_id = ?)
		 ORDER BY seq`, userID, assetID, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []valuation.Operation
	for rows.Next() {
		var op valuation.Operation
		var typ, quantity, price, fees, cur, total, at string
		if err := rows.Scan(&op.Seq, &op.ID, &op.UserID, &op.AssetID, &typ, &quantity, &price, &fees, &cur, &total, &at); err != nil {
			return nil, err
		}
		var errs []error
		dec := func(s string) decimal.Decimal {
			d, err := decimal.NewFromString(s)
			errs = append(errs, err)
			return d
		}
		op.Type = valuation.OperationType(typ)
		op.Quantity = valuation.Q(dec(quantity))
		op.PricePerUnit = valuation.M(dec(price), cur)
		op.Fees = valuation.M(dec(fees), cur)
		op.TotalAmount = valuation.M(dec(total), cur)
		op.OccurredAt, err = parseTime(at)
		errs = append(errs, err)
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("invalid operation %q: %w", op.ID, err)
		}
		res = append(res, op)
	}
	return res, rows.Err()
}

// AddGoal records a new goal with its alerts armed.
func (s *Store) AddGoal(ctx context.Context, g valuation.Goal) (valuation.Goal, error) {
	g = g.Armed()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if err := s.RestoreGoal(ctx, g); err != nil {
		return valuation.Goal{}, err
	}
	return g, nil
}

// RestoreGoal records a goal as is, engine owned fields included. It is used
// to import goals from another store.
func (s *Store) RestoreGoal(ctx context.Context, g valuation.Goal) error {
	if g.ID == "" {
		return fmt.Errorf("%w: missing id", valuation.ErrInvalidGoal)
	}
	if err := g.Check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (id, user_id, name, scope, asset_id, target, currency, target_date, alert_at_80, alert_at_100,
		 alert80_sent, alert100_sent, achieved_at, revision)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, string(g.Scope), g.AssetID,
		g.TargetAmount.Decimal().String(), g.Currency(), nullDate(g.TargetDate), g.AlertAt80, g.AlertAt100,
		g.Alert80Sent, g.Alert100Sent, nullTime(g.AchievedAt), g.Revision)
	if err != nil {
		return fmt.Errorf("cannot insert goal %q: %w", g.ID, err)
	}
	return nil
}

// EditGoal applies a user edit to a goal. Edits to the target re-arm its
// alerts.
func (s *Store) EditGoal(ctx context.Context, id string, e valuation.GoalEdit) (valuation.Goal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return valuation.Goal{}, err
	}
	defer tx.Rollback()

	goals, err := queryGoals(ctx, tx, `WHERE id = ?`, id)
	if err != nil {
		return valuation.Goal{}, err
	}
	if len(goals) == 0 {
		return valuation.Goal{}, fmt.Errorf("goal %q: %w", id, valuation.ErrNotFound)
	}
	g := goals[0].Apply(e)
	if err := g.Check(); err != nil {
		return valuation.Goal{}, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE goals SET name = ?, scope = ?, asset_id = ?, target = ?, currency = ?, target_date = ?,
		 alert_at_80 = ?, alert_at_100 = ?, alert80_sent = ?, alert100_sent = ?, achieved_at = ?, revision = ?
		 WHERE id = ?`,
		g.Name, string(g.Scope), g.AssetID, g.TargetAmount.Decimal().String(), g.Currency(), nullDate(g.TargetDate),
		g.AlertAt80, g.AlertAt100, g.Alert80Sent, g.Alert100Sent, nullTime(g.AchievedAt), g.Revision, g.ID)
	if err != nil {
		return valuation.Goal{}, err
	}
	return g, tx.Commit()
}

// ListGoals implements valuation.GoalStore.
func (s *Store) ListGoals(ctx context.Context, userID string) ([]valuation.Goal, error) {
	return queryGoals(ctx, s.db, `WHERE user_id = ? ORDER BY rowid`, userID)
}

// UpdateGoalFlags implements valuation.GoalStore. Each transition is a
// conditional UPDATE on the goal revision, so that among concurrent updates
// only one applies it and none applies once the goal was re-armed.
func (s *Store) UpdateGoalFlags(ctx context.Context, goalID string, update valuation.FlagUpdate) (valuation.FlagUpdate, error) {
	applied := valuation.FlagUpdate{Revision: update.Revision}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return applied, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM goals WHERE id = ?`, goalID).Scan(&exists); err != nil {
		return applied, err
	}
	if exists == 0 {
		return applied, fmt.Errorf("goal %q: %w", goalID, valuation.ErrNotFound)
	}

	set := func(query string, args ...any) (bool, error) {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n == 1, err
	}
	if update.Alert80Sent {
		if applied.Alert80Sent, err = set(`UPDATE goals SET alert80_sent = 1 WHERE id = ? AND revision = ? AND alert80_sent = 0`, goalID, update.Revision); err != nil {
			return valuation.FlagUpdate{}, err
		}
	}
	if update.Alert100Sent {
		if applied.Alert100Sent, err = set(`UPDATE goals SET alert100_sent = 1 WHERE id = ? AND revision = ? AND alert100_sent = 0`, goalID, update.Revision); err != nil {
			return valuation.FlagUpdate{}, err
		}
	}
	if update.AchievedAt != nil {
		ok, err := set(`UPDATE goals SET achieved_at = ? WHERE id = ? AND revision = ? AND achieved_at IS NULL`,
			formatTime(*update.AchievedAt), goalID, update.Revision)
		if err != nil {
			return valuation.FlagUpdate{}, err
		}
		if ok {
			at := *update.AchievedAt
			applied.AchievedAt = &at
		}
	}
	if err := tx.Commit(); err != nil {
		return valuation.FlagUpdate{}, err
	}
	return applied, nil
}

// DeleteGoal removes a goal.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return fmt.Errorf("goal %q: %w", id, valuation.ErrNotFound)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryGoals(ctx context.Context, q querier, where string, args ...any) ([]valuation.Goal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, name, scope, asset_id, target, currency, target_date,
		 alert_at_80, alert_at_100, alert80_sent, alert100_sent, achieved_at, revision
		 FROM goals `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []valuation.Goal
	for rows.Next() {
		var g valuation.Goal
		var scope, target, cur string
		var targetDate, achievedAt sql.NullString
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &scope, &g.AssetID, &target, &cur, &targetDate,
			&g.AlertAt80, &g.AlertAt100, &g.Alert80Sent, &g.Alert100Sent, &achievedAt, &g.Revision); err != nil {
			return nil, err
		}
		g.Scope = valuation.GoalScope(scope)
		amount, err := decimal.NewFromString(target)
		if err != nil {
			return nil, fmt.Errorf("invalid target of goal %q: %w", g.ID, err)
		}
		g.TargetAmount = valuation.M(amount, cur)
		if targetDate.Valid {
			d, err := date.Parse(targetDate.String)
			if err != nil {
				return nil, fmt.Errorf("invalid target date of goal %q: %w", g.ID, err)
			}
			g.TargetDate = &d
		}
		if achievedAt.Valid {
			at, err := parseTime(achievedAt.String)
			if err != nil {
				return nil, fmt.Errorf("invalid achievement date of goal %q: %w", g.ID, err)
			}
			g.AchievedAt = &at
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func nullDate(d *date.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

var (
	_ valuation.LedgerSource    = (*Store)(nil)
	_ valuation.AssetRepository = (*Store)(nil)
	_ valuation.PriceProvider   = (*Store)(nil)
	_ valuation.RateProvider    = (*Store)(nil)
	_ valuation.GoalStore       = (*Store)(nil)
)
