// Package storage persists fetched proposals and extracted payment records
// in SQLite, so reports can be served without refetching the indexer.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"daoledger/internal/core"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ReplaceSubUnit swaps the stored snapshot of one sub-unit: its proposals
// and payment records are replaced atomically by the freshly fetched set.
func (r *SQLiteRepository) ReplaceSubUnit(ctx context.Context, network core.Network, sub core.SubUnit, proposals []core.ProposalRecord, payments []core.PaymentRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM proposals WHERE network = ? AND subunit_address = ?`,
		network, sub.Address); err != nil {
		return fmt.Errorf("delete proposals: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM payments WHERE network = ? AND subunit_address = ?`,
		network, sub.Address); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}

	now := time.Now().UTC()
	for _, p := range proposals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO proposals (network, subunit_address, subunit_name, proposal_id, status, title, description, submitted_at, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			network, sub.Address, sub.Name, p.ID, p.Status, p.Title, p.Description, p.SubmittedAt.UTC(), now,
		); err != nil {
			return fmt.Errorf("insert proposal %d: %w", p.ID, err)
		}
	}

	for _, rec := range payments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payments (network, proposal_id, proposal_title, subunit_address, subunit_name, recipient, category, amount, denom, adjusted, symbol, usd_value, message_kind, contract_address, paid_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Network, rec.ProposalID, rec.ProposalTitle, rec.SubUnit.Address, rec.SubUnit.Name,
			rec.Recipient, rec.Category, rec.Amount.Amount.String(), rec.Amount.Denom,
			rec.Adjusted.String(), rec.Symbol, rec.USDValue.String(), rec.Kind,
			rec.ContractAddr, rec.PaidAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert payment for proposal %d: %w", rec.ProposalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	slog.InfoContext(ctx, "Sub-unit snapshot replaced",
		"network", network,
		"sub_unit", sub.Label(),
		"proposals", len(proposals),
		"payments", len(payments))
	return nil
}

// Filter narrows payment listings. Zero values mean "no constraint".
type Filter struct {
	SubUnitAddress string
	Category       core.RecipientCategory
	Recipient      string
	Denom          string
}

// ListPayments returns stored payment records for a network, newest first.
func (r *SQLiteRepository) ListPayments(ctx context.Context, network core.Network, f Filter) ([]core.PaymentRecord, error) {
	query := `
		SELECT proposal_id, proposal_title, subunit_address, subunit_name, recipient, category,
		       amount, denom, adjusted, symbol, usd_value, message_kind, contract_address, paid_at
		FROM payments
		WHERE network = ?`
	args := []any{network}

	if f.SubUnitAddress != "" {
		query += ` AND subunit_address = ?`
		args = append(args, f.SubUnitAddress)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Recipient != "" {
		query += ` AND recipient = ?`
		args = append(args, f.Recipient)
	}
	if f.Denom != "" {
		query += ` AND denom = ?`
		args = append(args, f.Denom)
	}
	query += ` ORDER BY paid_at DESC, proposal_id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var records []core.PaymentRecord
	for rows.Next() {
		var (
			rec                            core.PaymentRecord
			amount, adjusted, usd          string
			subAddr, subName               string
			paidAt                         sql.NullTime
		)
		if err := rows.Scan(&rec.ProposalID, &rec.ProposalTitle, &subAddr, &subName,
			&rec.Recipient, &rec.Category, &amount, &rec.Amount.Denom, &adjusted,
			&rec.Symbol, &usd, &rec.Kind, &rec.ContractAddr, &paidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}

		rec.Network = network
		rec.SubUnit = core.SubUnit{Name: subName, Address: subAddr}
		if paidAt.Valid {
			rec.PaidAt = paidAt.Time
		}
		if rec.Amount.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse stored amount %q: %w", amount, err)
		}
		if rec.Adjusted, err = decimal.NewFromString(adjusted); err != nil {
			return nil, fmt.Errorf("parse stored adjusted amount %q: %w", adjusted, err)
		}
		if rec.USDValue, err = decimal.NewFromString(usd); err != nil {
			return nil, fmt.Errorf("parse stored usd value %q: %w", usd, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SubUnits returns the sub-units with stored data for a network.
func (r *SQLiteRepository) SubUnits(ctx context.Context, network core.Network) ([]core.SubUnit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT subunit_address, subunit_name
		FROM proposals
		WHERE network = ?
		ORDER BY subunit_name, subunit_address`, network)
	if err != nil {
		return nil, fmt.Errorf("list sub-units: %w", err)
	}
	defer rows.Close()

	var units []core.SubUnit
	for rows.Next() {
		var u core.SubUnit
		if err := rows.Scan(&u.Address, &u.Name); err != nil {
			return nil, fmt.Errorf("scan sub-unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// ProposalCount reports how many proposals are stored for a sub-unit.
func (r *SQLiteRepository) ProposalCount(ctx context.Context, network core.Network, subUnitAddress string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proposals WHERE network = ? AND subunit_address = ?`,
		network, subUnitAddress).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count proposals: %w", err)
	}
	return n, nil
}

// LastFetched returns the most recent snapshot time for a network, or the
// zero time when nothing is stored.
func (r *SQLiteRepository) LastFetched(ctx context.Context, network core.Network) (time.Time, error) {
	var raw sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(fetched_at) FROM proposals WHERE network = ?`, network).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("last fetched: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, strings.TrimSpace(raw.String)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, nil
}
