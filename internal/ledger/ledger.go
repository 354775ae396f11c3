package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"poolgate.io/pgw/internal/types"
)

// Record books a deposit of amount base units from depositor toward dest's
// current window. It assumes the caller already pulled the funds into
// custody. Repeat contributions from the same depositor are summed; the
// depositor appears once in the contributor set.
func (l *Ledger) Record(ctx context.Context, dest types.Destination, depositor string, amount uint64) error {
	if !l.Supported(dest) {
		return fmt.Errorf("record deposit for %q: %w", dest, types.ErrUnsupportedDestination)
	}
	if depositor == "" {
		return errors.New("depositor identity is required")
	}
	if amount == 0 {
		return errors.New("deposit amount must be positive")
	}
	if amount > math.MaxInt64 {
		return fmt.Errorf("deposit amount %d exceeds ledger range", amount)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deposit: %w", err)
	}

	// position fixes a deterministic enumeration order for the window
	_, err = tx.ExecContext(ctx, `INSERT INTO window_entries (destination, depositor, amount, position)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position)+1, 0) FROM window_entries WHERE destination = ?))
		ON CONFLICT(destination, depositor) DO UPDATE SET amount = amount + excluded.amount`,
		string(dest), depositor, int64(amount), string(dest))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert window entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO window_totals (destination, total) VALUES (?, ?)
		ON CONFLICT(destination) DO UPDATE SET total = total + excluded.total`,
		string(dest), int64(amount))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("update window total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deposit: %w", err)
	}
	return nil
}

// Total returns dest's current window total. A destination that has never
// seen a deposit reads as zero.
func (l *Ledger) Total(ctx context.Context, dest types.Destination) (uint64, error) {
	if !l.Supported(dest) {
		return 0, fmt.Errorf("total for %q: %w", dest, types.ErrUnsupportedDestination)
	}

	var total int64
	err := l.db.QueryRowContext(ctx, `SELECT total FROM window_totals WHERE destination = ?`, string(dest)).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query window total: %w", err)
	}
	return uint64(total), nil
}

// Snapshot returns the ordered contributor list, the parallel balance list,
// and the window total for dest. It never mutates state.
func (l *Ledger) Snapshot(ctx context.Context, dest types.Destination) (*types.Snapshot, error) {
	if !l.Supported(dest) {
		return nil, fmt.Errorf("snapshot for %q: %w", dest, types.ErrUnsupportedDestination)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT depositor, amount FROM window_entries
		WHERE destination = ? ORDER BY position`, string(dest))
	if err != nil {
		return nil, fmt.Errorf("query window entries: %w", err)
	}
	defer rows.Close()

	snap := &types.Snapshot{Destination: dest}
	for rows.Next() {
		var depositor string
		var amount int64
		if err := rows.Scan(&depositor, &amount); err != nil {
			return nil, fmt.Errorf("scan window entry: %w", err)
		}
		snap.Contributors = append(snap.Contributors, depositor)
		snap.Balances = append(snap.Balances, uint64(amount))
		snap.Total += uint64(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window entries: %w", err)
	}

	return snap, nil
}

// Reset drains dest's window and appends rec to the settlement history in
// one transaction. It must be called exactly once per settlement, and only
// after the carrier has irrevocably accepted the outbound message; a send
// failure followed by a reset would lose track of funds already in custody.
func (l *Ledger) Reset(ctx context.Context, dest types.Destination, rec *types.SettlementRecord) error {
	if !l.Supported(dest) {
		return fmt.Errorf("reset for %q: %w", dest, types.ErrUnsupportedDestination)
	}

	contributors, err := json.Marshal(rec.Contributors)
	if err != nil {
		return fmt.Errorf("encode contributors: %w", err)
	}
	balances, err := json.Marshal(rec.Balances)
	if err != nil {
		return fmt.Errorf("encode balances: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM window_entries WHERE destination = ?`, string(dest)); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear window entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE window_totals SET total = 0 WHERE destination = ?`, string(dest)); err != nil {
		tx.Rollback()
		return fmt.Errorf("zero window total: %w", err)
	}

	settledAt := rec.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now()
	}
	// fixed-width fraction so the text column sorts chronologically
	const settledAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
	_, err = tx.ExecContext(ctx, `INSERT INTO settlements
		(id, message_id, destination, receiver, contributors, balances, total, fee_asset, fee_amount, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MessageID, string(dest), rec.Receiver, string(contributors), string(balances),
		int64(rec.Total), rec.FeeAsset, int64(rec.FeeAmount), settledAt.UTC().Format(settledAtLayout))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("record settlement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// Settlements returns the most recent settlement records for dest, newest
// first. limit <= 0 selects a default page of 50.
func (l *Ledger) Settlements(ctx context.Context, dest types.Destination, limit int) ([]types.SettlementRecord, error) {
	if !l.Supported(dest) {
		return nil, fmt.Errorf("settlements for %q: %w", dest, types.ErrUnsupportedDestination)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `SELECT id, message_id, destination, receiver, contributors,
		balances, total, fee_asset, fee_amount, settled_at FROM settlements
		WHERE destination = ? ORDER BY settled_at DESC LIMIT ?`, string(dest), limit)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var records []types.SettlementRecord
	for rows.Next() {
		var rec types.SettlementRecord
		var destStr, contributors, balances, settledAt string
		var total, feeAmount int64
		if err := rows.Scan(&rec.ID, &rec.MessageID, &destStr, &rec.Receiver,
			&contributors, &balances, &total, &rec.FeeAsset, &feeAmount, &settledAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		rec.Destination = types.Destination(destStr)
		rec.Total = uint64(total)
		rec.FeeAmount = uint64(feeAmount)
		if err := json.Unmarshal([]byte(contributors), &rec.Contributors); err != nil {
			return nil, fmt.Errorf("decode contributors: %w", err)
		}
		if err := json.Unmarshal([]byte(balances), &rec.Balances); err != nil {
			return nil, fmt.Errorf("decode balances: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, settledAt); err == nil {
			rec.SettledAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}

	return records, nil
}
