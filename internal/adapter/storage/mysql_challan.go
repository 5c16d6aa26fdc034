package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/jobcard-erp/internal/core/domain"
)

const (
	selectChallans = `
		SELECT id, grn_no, grn_date, supplier_id, challan_no, challan_date,
		       item_id, item_name, process_id, qty
		FROM inward_lc_challan`

	// rows edited to non-numeric or oversized numbers do not advance the sequence
	maxGRN = `SELECT COALESCE(MAX(CAST(grn_no AS UNSIGNED)), 0) FROM inward_lc_challan
		WHERE grn_no REGEXP '^[0-9]{1,16}$'`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func (m *MySQLAdapter) CreateChallanWithNextGRN(ctx context.Context, c domain.Challan) (domain.Challan, error) {
	err := withTx(ctx, m.db, nil, func(tx *sql.Tx) error {
		// FOR UPDATE holds the scanned range so a concurrent allocator waits or deadlocks
		var current uint64
		if err := tx.QueryRowContext(ctx, maxGRN+` FOR UPDATE`).Scan(&current); err != nil {
			return fmt.Errorf("read max grn: %w", err)
		}
		next, err := domain.NextGRN(current)
		if err != nil {
			return err
		}
		c.GRNNo = next

		result, err := tx.ExecContext(ctx, `
			INSERT INTO inward_lc_challan
			(grn_no, grn_date, supplier_id, challan_no, challan_date, item_id, item_name, process_id, qty)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.GRNNo, c.GRNDate, c.SupplierID, c.ChallanNo, c.ChallanDate,
			c.ItemID, c.ItemName, c.ProcessID, c.Qty,
		)
		if err != nil {
			return fmt.Errorf("insert challan: %w", err)
		}

		c.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("challan id: %w", err)
		}
		return nil
	})
	if err != nil {
		if isRetryable(err) {
			return domain.Challan{}, fmt.Errorf("%w: %v", domain.ErrSequenceConflict, err)
		}
		return domain.Challan{}, err
	}
	return c, nil
}

func (m *MySQLAdapter) NextGRN(ctx context.Context) (string, error) {
	var current uint64
	if err := m.db.QueryRowContext(ctx, maxGRN).Scan(&current); err != nil {
		return "", fmt.Errorf("read max grn: %w", err)
	}
	return domain.NextGRN(current)
}

func (m *MySQLAdapter) ListChallans(ctx context.Context) ([]domain.Challan, error) {
	rows, err := m.db.QueryContext(ctx, selectChallans+`
		ORDER BY CAST(grn_no AS UNSIGNED) ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query challans: %w", err)
	}
	defer rows.Close()

	challans := []domain.Challan{}
	for rows.Next() {
		c, err := scanChallan(rows)
		if err != nil {
			return nil, err
		}
		challans = append(challans, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challans: %w", err)
	}
	return challans, nil
}

func (m *MySQLAdapter) GetChallan(ctx context.Context, id int64) (*domain.Challan, error) {
	c, err := scanChallan(m.db.QueryRowContext(ctx, selectChallans+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *MySQLAdapter) UpdateChallan(ctx context.Context, c domain.Challan) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inward_lc_challan
		SET grn_no = ?, grn_date = ?, supplier_id = ?, challan_no = ?, challan_date = ?,
		    item_id = ?, item_name = ?, process_id = ?, qty = ?
		WHERE id = ?`,
		c.GRNNo, c.GRNDate, c.SupplierID, c.ChallanNo, c.ChallanDate,
		c.ItemID, c.ItemName, c.ProcessID, c.Qty, c.ID,
	)
	if isDuplicateEntry(err) {
		return false, fmt.Errorf("%w: %s", domain.ErrDuplicateGRN, c.GRNNo)
	}
	if err != nil {
		return false, fmt.Errorf("update challan: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update challan: %w", err)
	}
	return rows > 0, nil
}

func (m *MySQLAdapter) DeleteChallan(ctx context.Context, id int64) (bool, error) {
	result, err := m.db.ExecContext(ctx, `DELETE FROM inward_lc_challan WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete challan: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete challan: %w", err)
	}
	return rows > 0, nil
}

func scanChallan(row rowScanner) (domain.Challan, error) {
	var (
		c           domain.Challan
		challanNo   sql.NullString
		challanDate domain.Date
		itemName    sql.NullString
		processID   sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.GRNNo, &c.GRNDate, &c.SupplierID, &challanNo, &challanDate,
		&c.ItemID, &itemName, &processID, &c.Qty)
	if errors.Is(err, sql.ErrNoRows) {
		return c, err
	}
	if err != nil {
		return c, fmt.Errorf("scan challan: %w", err)
	}

	if challanNo.Valid {
		c.ChallanNo = &challanNo.String
	}
	if !challanDate.IsZero() {
		c.ChallanDate = &challanDate
	}
	if itemName.Valid {
		c.ItemName = &itemName.String
	}
	if processID.Valid {
		c.ProcessID = &processID.Int64
	}
	return c, nil
}
