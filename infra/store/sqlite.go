// Package store implements the ledger on SQLite through the pure Go
// modernc driver. Decimal amounts are stored as TEXT to keep them exact.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/kilianp07/dobi/core/ledger"
	"github.com/kilianp07/dobi/core/model"
)

const pragmas = "_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)"

// SQLiteStore implements ledger.Store.
type SQLiteStore struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteStore)(nil)

// Open opens or creates the database at path and ensures the schema. DSNs
// starting with "file:" are passed through, which allows in-memory
// databases in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("creating store dir: %w", err)
			}
		}
	}
	if strings.Contains(dsn, "?") {
		dsn += "&" + pragmas
	} else {
		dsn += "?" + pragmas
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	// One connection serializes writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateCharger(ctx context.Context, c model.Charger) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO chargers
		(id_charger, owner_address, wallet_address, wallet_private_key, status,
		 transactions, income_generated, cost_generated, balance_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id_charger) DO NOTHING`,
		c.ID, c.OwnerAddress, c.WalletAddress, c.WalletPrivateKey, string(c.Status),
		c.Transactions, c.IncomeGenerated.String(), c.CostGenerated.String(), c.BalanceTotal.String(),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert charger: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrExists
	}
	return nil
}

const chargerColumns = `id_charger, owner_address, wallet_address, wallet_private_key, status,
	transactions, income_generated, cost_generated, balance_total`

type scanner interface {
	Scan(dest ...any) error
}

func scanCharger(row scanner) (model.Charger, error) {
	var (
		c                     model.Charger
		status                string
		income, cost, balance string
	)
	if err := row.Scan(&c.ID, &c.OwnerAddress, &c.WalletAddress, &c.WalletPrivateKey, &status,
		&c.Transactions, &income, &cost, &balance); err != nil {
		return model.Charger{}, err
	}
	c.Status = model.Status(status)
	totals, err := parseTotals(c.Transactions, income, cost, balance)
	if err != nil {
		return model.Charger{}, fmt.Errorf("charger %s: %w", c.ID, err)
	}
	c.Totals = totals
	return c, nil
}

func parseTotals(n int64, income, cost, balance string) (model.Totals, error) {
	t := model.Totals{Transactions: n}
	var err error
	if t.IncomeGenerated, err = decimal.NewFromString(income); err != nil {
		return t, fmt.Errorf("income_generated: %w", err)
	}
	if t.CostGenerated, err = decimal.NewFromString(cost); err != nil {
		return t, fmt.Errorf("cost_generated: %w", err)
	}
	if t.BalanceTotal, err = decimal.NewFromString(balance); err != nil {
		return t, fmt.Errorf("balance_total: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) GetCharger(ctx context.Context, id string) (model.Charger, error) {
	return getCharger(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getCharger(ctx context.Context, q querier, id string) (model.Charger, error) {
	row := q.QueryRowContext(ctx, `SELECT `+chargerColumns+` FROM chargers WHERE id_charger = ?`, id)
	c, err := scanCharger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Charger{}, ledger.ErrNotFound
	}
	return c, err
}

func (s *SQLiteStore) ListChargers(ctx context.Context) ([]model.Charger, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chargerColumns+` FROM chargers ORDER BY created_at, id_charger`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Charger
	for rows.Next() {
		c, err := scanCharger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status model.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chargers SET status = ? WHERE id_charger = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Transition(ctx context.Context, id string, status model.Status, msg string, at time.Time) (model.LogEntry, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (model.LogEntry, error) {
		res, err := tx.ExecContext(ctx, `UPDATE chargers SET status = ? WHERE id_charger = ?`, string(status), id)
		if err != nil {
			return model.LogEntry{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.LogEntry{}, ledger.ErrNotFound
		}
		c, err := getCharger(ctx, tx, id)
		if err != nil {
			return model.LogEntry{}, err
		}
		return insertLog(ctx, tx, id, msg, at, c.Totals)
	})
}

func (s *SQLiteStore) ApplyTotals(ctx context.Context, id string, t model.Totals, msg string, at time.Time) (model.LogEntry, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (model.LogEntry, error) {
		res, err := tx.ExecContext(ctx, `UPDATE chargers
			SET transactions = ?, income_generated = ?, cost_generated = ?, balance_total = ?
			WHERE id_charger = ?`,
			t.Transactions, t.IncomeGenerated.String(), t.CostGenerated.String(), t.BalanceTotal.String(), id)
		if err != nil {
			return model.LogEntry{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.LogEntry{}, ledger.ErrNotFound
		}
		return insertLog(ctx, tx, id, msg, at, t)
	})
}

func (s *SQLiteStore) AppendLog(ctx context.Context, id string, msg string, at time.Time) (model.LogEntry, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (model.LogEntry, error) {
		c, err := getCharger(ctx, tx, id)
		if err != nil {
			return model.LogEntry{}, err
		}
		return insertLog(ctx, tx, id, msg, at, c.Totals)
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) (model.LogEntry, error)) (model.LogEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.LogEntry{}, err
	}
	defer func() { _ = tx.Rollback() }()
	entry, err := fn(tx)
	if err != nil {
		return model.LogEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.LogEntry{}, fmt.Errorf("commit: %w", err)
	}
	return entry, nil
}

func insertLog(ctx context.Context, tx *sql.Tx, id, msg string, at time.Time, t model.Totals) (model.LogEntry, error) {
	at = at.UTC()
	res, err := tx.ExecContext(ctx, `INSERT INTO logs
		(charger_id, message, timestamp, transactions, income_generated, cost_generated, balance_total)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, msg, at.Format(time.RFC3339Nano), t.Transactions,
		t.IncomeGenerated.String(), t.CostGenerated.String(), t.BalanceTotal.String())
	if err != nil {
		return model.LogEntry{}, fmt.Errorf("insert log: %w", err)
	}
	logID, err := res.LastInsertId()
	if err != nil {
		return model.LogEntry{}, err
	}
	return model.LogEntry{ID: logID, ChargerID: id, Message: msg, Timestamp: at, Totals: t}, nil
}

func (s *SQLiteStore) Logs(ctx context.Context, q ledger.LogQuery) ([]model.LogEntry, error) {
	var args []any
	query := `SELECT id, charger_id, message, timestamp, transactions, income_generated, cost_generated, balance_total
		FROM logs WHERE 1=1`
	if q.ChargerID != "" {
		query += ` AND charger_id = ?`
		args = append(args, q.ChargerID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, q.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.LogEntry
	for rows.Next() {
		var (
			e                     model.LogEntry
			ts                    string
			income, cost, balance string
		)
		if err := rows.Scan(&e.ID, &e.ChargerID, &e.Message, &ts, &e.Transactions, &income, &cost, &balance); err != nil {
			return nil, err
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("log %d timestamp: %w", e.ID, err)
		}
		if e.Totals, err = parseTotals(e.Transactions, income, cost, balance); err != nil {
			return nil, fmt.Errorf("log %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
