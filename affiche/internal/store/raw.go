package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/affiche/dbopen"
)

// InsertRawRecord appends one record to the intake queue and fills in the
// store-assigned ID.
func (s *Store) InsertRawRecord(ctx context.Context, rec *RawRecord) error {
	if rec.ReceivedAt == 0 {
		rec.ReceivedAt = time.Now().UnixMilli()
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO raw_records (source_tag, payload, received_at) VALUES (?, ?, ?)`,
		rec.SourceTag, string(rec.Payload), rec.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert raw record: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	return err
}

// ListPendingRaw returns every record awaiting normalization in intake
// order. The pipeline relies on this order being stable so a rerun after a
// partial failure processes records the same way.
func (s *Store) ListPendingRaw(ctx context.Context) ([]*RawRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, source_tag, payload, received_at FROM raw_records ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list raw records: %w", err)
	}
	defer rows.Close()

	var recs []*RawRecord
	for rows.Next() {
		var rec RawRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.SourceTag, &payload, &rec.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan raw record: %w", err)
		}
		rec.Payload = payload
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// CountPendingRaw returns the intake backlog size.
func (s *Store) CountPendingRaw(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_records`).Scan(&count)
	return count, err
}

// DeleteRawRecords retires processed records in one transaction and reports
// how many rows went away. A nil or empty id list is a no-op. The retire
// competes with live intake writes on the same file, so the transaction
// retries on BUSY.
func (s *Store) DeleteRawRecords(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted := 0
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM raw_records WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("prepare retire: %w", err)
		}
		defer stmt.Close()

		deleted = 0
		for _, id := range ids {
			res, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return fmt.Errorf("retire record %d: %w", id, err)
			}
			n, _ := res.RowsAffected()
			deleted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
