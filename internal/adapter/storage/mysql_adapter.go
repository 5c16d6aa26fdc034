package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/jobcard-erp/internal/core/domain"
)

const selectInwards = `
	SELECT i.id, i.inward_date, i.customer_id, COALESCE(c.name, ''),
	       ip.id, ip.part_id, p.name, p.code, ip.qty
	FROM inwards i
	LEFT JOIN customers c ON c.id = i.customer_id
	LEFT JOIN inward_parts ip ON ip.inward_id = i.id
	LEFT JOIN parts p ON p.id = ip.part_id`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) CreateInward(ctx context.Context, in domain.InwardInput) (int64, error) {
	var id int64
	err := withTx(ctx, m.db, nil, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO inwards (inward_date, customer_id) VALUES (?, ?)`,
			in.Date, in.CustomerID,
		)
		if err != nil {
			return fmt.Errorf("insert inward: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("inward id: %w", err)
		}

		return insertLines(ctx, tx, id, in.Lines)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (m *MySQLAdapter) UpdateInward(ctx context.Context, id int64, in domain.InwardInput) (bool, error) {
	err := withTx(ctx, m.db, nil, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE inwards SET inward_date = ?, customer_id = ? WHERE id = ?`,
			in.Date, in.CustomerID, id,
		)
		if err != nil {
			return fmt.Errorf("update inward: %w", err)
		}

		// clientFoundRows makes this the matched count, so an unchanged header still counts
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update inward: %w", err)
		}
		if rows == 0 {
			return errNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM inward_parts WHERE inward_id = ?`, id); err != nil {
			return fmt.Errorf("delete inward parts: %w", err)
		}

		return insertLines(ctx, tx, id, in.Lines)
	})
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *MySQLAdapter) DeleteInwards(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	marks, args := inClause(ids)

	return withTx(ctx, m.db, nil, func(tx *sql.Tx) error {
		// children first so the foreign key holds
		if _, err := tx.ExecContext(ctx, `DELETE FROM inward_parts WHERE inward_id IN (`+marks+`)`, args...); err != nil {
			return fmt.Errorf("delete inward parts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM inwards WHERE id IN (`+marks+`)`, args...); err != nil {
			return fmt.Errorf("delete inwards: %w", err)
		}
		return nil
	})
}

func (m *MySQLAdapter) ListInwards(ctx context.Context) ([]domain.Inward, error) {
	rows, err := m.db.QueryContext(ctx, selectInwards+`
		ORDER BY i.id DESC, ip.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query inwards: %w", err)
	}
	defer rows.Close()

	return scanInwards(rows)
}

func (m *MySQLAdapter) GetInward(ctx context.Context, id int64) (*domain.Inward, error) {
	rows, err := m.db.QueryContext(ctx, selectInwards+`
		WHERE i.id = ?
		ORDER BY ip.id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query inward: %w", err)
	}
	defer rows.Close()

	inwards, err := scanInwards(rows)
	if err != nil {
		return nil, err
	}
	if len(inwards) == 0 {
		return nil, nil
	}
	return &inwards[0], nil
}

func insertLines(ctx context.Context, tx *sql.Tx, inwardID int64, lines []domain.LineInput) error {
	if len(lines) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO inward_parts (inward_id, part_id, qty) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare inward part: %w", err)
	}
	defer stmt.Close()

	for i, line := range lines {
		if _, err := stmt.ExecContext(ctx, inwardID, line.PartID, line.Qty); err != nil {
			return fmt.Errorf("insert inward part %d (part %d): %w", i, line.PartID, err)
		}
	}
	return nil
}

// scanInwards folds the flat join into one Inward per id, keeping the row order.
func scanInwards(rows *sql.Rows) ([]domain.Inward, error) {
	var (
		inwards []domain.Inward
		index   = make(map[int64]int)
	)

	for rows.Next() {
		var (
			inw      domain.Inward
			lineID   sql.NullInt64
			partID   sql.NullInt64
			partName sql.NullString
			partCode sql.NullString
			qty      decimal.NullDecimal
		)
		if err := rows.Scan(&inw.ID, &inw.Date, &inw.CustomerID, &inw.CustomerName,
			&lineID, &partID, &partName, &partCode, &qty); err != nil {
			return nil, fmt.Errorf("scan inward: %w", err)
		}

		pos, ok := index[inw.ID]
		if !ok {
			inw.Parts = []domain.InwardLine{}
			inwards = append(inwards, inw)
			pos = len(inwards) - 1
			index[inw.ID] = pos
		}

		if !lineID.Valid {
			continue
		}
		inwards[pos].Parts = append(inwards[pos].Parts, domain.InwardLine{
			ID:       lineID.Int64,
			PartID:   partID.Int64,
			PartName: partName.String,
			PartCode: partCode.String,
			Qty:      qty.Decimal,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inwards: %w", err)
	}

	if inwards == nil {
		inwards = []domain.Inward{}
	}
	return inwards, nil
}
