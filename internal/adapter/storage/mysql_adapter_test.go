package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/jobcard-erp/internal/core/domain"
)

const (
	testCustomerID = 9001
	testPartA      = 9101
	testPartB      = 9102
	testPartC      = 9103
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/jobcard_test?parseTime=true"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	db, err := OpenMySQL(ctx, MySQLConfig{DSN: dsn, MaxOpenConns: 10})
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if _, err := Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}

	// Setup - reference rows the inward tables point at
	for _, q := range []string{
		`INSERT INTO customers (id, name) VALUES (9001, 'Test Customer') ON DUPLICATE KEY UPDATE name = VALUES(name)`,
		`INSERT INTO parts (id, name, code) VALUES (9101, 'Part A', 'PA'), (9102, 'Part B', 'PB'), (9103, 'Part C', 'PC')
		 ON DUPLICATE KEY UPDATE name = VALUES(name), code = VALUES(code)`,
	} {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			t.Fatalf("setup failed: %v", err)
		}
	}

	return db
}

func qty(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func cleanupInward(db *sql.DB, id int64) {
	db.Exec(`DELETE FROM inward_parts WHERE inward_id = ?`, id)
	db.Exec(`DELETE FROM inwards WHERE id = ?`, id)
}

func TestCreateInward_Success(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	id, err := adapter.CreateInward(ctx, domain.InwardInput{
		Date:       domain.NewDate(2024, time.March, 5),
		CustomerID: testCustomerID,
		Lines: []domain.LineInput{
			{PartID: testPartA, Qty: qty(5)},
			{PartID: testPartB, Qty: decimal.RequireFromString("2.5")},
		},
	})
	if err != nil {
		t.Fatalf("CreateInward failed: %v", err)
	}
	defer cleanupInward(db, id)

	inw, err := adapter.GetInward(ctx, id)
	if err != nil {
		t.Fatalf("GetInward failed: %v", err)
	}
	if inw == nil {
		t.Fatal("expected inward, got nil")
	}
	if inw.CustomerName != "Test Customer" {
		t.Errorf("expected customer name 'Test Customer', got %s", inw.CustomerName)
	}
	if inw.Date.String() != "2024-03-05" {
		t.Errorf("expected date 2024-03-05, got %s", inw.Date)
	}
	if len(inw.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(inw.Parts))
	}
	if inw.Parts[0].PartID != testPartA || inw.Parts[0].PartName != "Part A" {
		t.Errorf("unexpected first part: %+v", inw.Parts[0])
	}
	if !inw.Parts[1].Qty.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("expected qty 2.5, got %s", inw.Parts[1].Qty)
	}
}

func TestCreateInward_RollbackOnBadPart(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	var before int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inwards`).Scan(&before)

	_, err := adapter.CreateInward(ctx, domain.InwardInput{
		Date:       domain.NewDate(2024, time.March, 6),
		CustomerID: testCustomerID,
		Lines: []domain.LineInput{
			{PartID: testPartA, Qty: qty(1)},
			{PartID: 987654321, Qty: qty(1)},
		},
	})
	if err == nil {
		t.Fatal("expected foreign key error")
	}

	var after int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inwards`).Scan(&after)
	if after != before {
		t.Errorf("expected %d inwards after rollback, got %d", before, after)
	}
}

func TestUpdateInward_ReplacesLines(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	in := domain.InwardInput{
		Date:       domain.NewDate(2024, time.March, 7),
		CustomerID: testCustomerID,
		Lines: []domain.LineInput{
			{PartID: testPartA, Qty: qty(1)},
			{PartID: testPartB, Qty: qty(2)},
		},
	}
	id, err := adapter.CreateInward(ctx, in)
	if err != nil {
		t.Fatalf("CreateInward failed: %v", err)
	}
	defer cleanupInward(db, id)

	// same header, new lines: the header row is matched but unchanged
	in.Lines = []domain.LineInput{{PartID: testPartC, Qty: qty(9)}}
	found, err := adapter.UpdateInward(ctx, id, in)
	if err != nil {
		t.Fatalf("UpdateInward failed: %v", err)
	}
	if !found {
		t.Fatal("expected inward to be found")
	}

	inw, _ := adapter.GetInward(ctx, id)
	if len(inw.Parts) != 1 || inw.Parts[0].PartID != testPartC {
		t.Errorf("expected only part C, got %+v", inw.Parts)
	}
}

func TestUpdateInward_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	const missing = 987654321
	found, err := adapter.UpdateInward(ctx, missing, domain.InwardInput{
		Date:       domain.NewDate(2024, time.March, 8),
		CustomerID: testCustomerID,
		Lines:      []domain.LineInput{{PartID: testPartA, Qty: qty(1)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected not found")
	}

	var orphans int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inward_parts WHERE inward_id = ?`, missing).Scan(&orphans)
	if orphans != 0 {
		t.Errorf("expected no orphan lines, got %d", orphans)
	}
}

func TestDeleteInwards_PartialIDs(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	id, err := adapter.CreateInward(ctx, domain.InwardInput{
		Date:       domain.NewDate(2024, time.March, 9),
		CustomerID: testCustomerID,
		Lines:      []domain.LineInput{{PartID: testPartA, Qty: qty(1)}},
	})
	if err != nil {
		t.Fatalf("CreateInward failed: %v", err)
	}

	if err := adapter.DeleteInwards(ctx, []int64{id, 987654321}); err != nil {
		t.Fatalf("DeleteInwards failed: %v", err)
	}

	inw, err := adapter.GetInward(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inw != nil {
		t.Error("expected inward to be deleted")
	}
}

func TestListInwards_Grouping(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	var ids []int64
	for i := 0; i < 2; i++ {
		id, err := adapter.CreateInward(ctx, domain.InwardInput{
			Date:       domain.NewDate(2024, time.March, 10),
			CustomerID: testCustomerID,
			Lines: []domain.LineInput{
				{PartID: testPartA, Qty: qty(1)},
				{PartID: testPartB, Qty: qty(2)},
				{PartID: testPartC, Qty: qty(3)},
			},
		})
		if err != nil {
			t.Fatalf("CreateInward failed: %v", err)
		}
		ids = append(ids, id)
		defer cleanupInward(db, id)
	}

	list, err := adapter.ListInwards(ctx)
	if err != nil {
		t.Fatalf("ListInwards failed: %v", err)
	}

	seen := make(map[int64]int)
	for i, inw := range list {
		seen[inw.ID]++
		if i > 0 && list[i-1].ID < inw.ID {
			t.Errorf("expected newest first, got %d before %d", list[i-1].ID, inw.ID)
		}
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Errorf("expected inward %d exactly once, got %d", id, seen[id])
		}
	}
}

func TestChallan_GRNAllocation(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	next, err := adapter.NextGRN(ctx)
	if err != nil {
		t.Fatalf("NextGRN failed: %v", err)
	}

	c, err := adapter.CreateChallanWithNextGRN(ctx, domain.Challan{
		GRNNo:      "999999",
		GRNDate:    domain.NewDate(2024, time.May, 1),
		SupplierID: 1,
		ItemID:     1,
		Qty:        qty(3),
	})
	if err != nil {
		t.Fatalf("CreateChallanWithNextGRN failed: %v", err)
	}
	defer db.Exec(`DELETE FROM inward_lc_challan WHERE id = ?`, c.ID)

	// other packages may allocate concurrently against the same database
	want, _ := strconv.ParseUint(next, 10, 64)
	got, err := strconv.ParseUint(c.GRNNo, 10, 64)
	if err != nil || got < want {
		t.Errorf("expected grn >= %s, got %s", next, c.GRNNo)
	}
	if c.GRNNo == "999999" {
		t.Error("expected client grn_no to be ignored")
	}

	stored, err := adapter.GetChallan(ctx, c.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetChallan failed: %v", err)
	}
	if stored.ChallanNo != nil || stored.ChallanDate != nil || stored.ProcessID != nil {
		t.Errorf("expected nullable fields to be nil, got %+v", stored)
	}
}

func TestChallan_UpdateDuplicateGRN(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	base := domain.Challan{GRNDate: domain.NewDate(2024, time.May, 2), SupplierID: 1, ItemID: 1, Qty: qty(1)}
	first, err := adapter.CreateChallanWithNextGRN(ctx, base)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer db.Exec(`DELETE FROM inward_lc_challan WHERE id = ?`, first.ID)
	second, err := adapter.CreateChallanWithNextGRN(ctx, base)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer db.Exec(`DELETE FROM inward_lc_challan WHERE id = ?`, second.ID)

	second.GRNNo = first.GRNNo
	_, err = adapter.UpdateChallan(ctx, second)
	if !errors.Is(err, domain.ErrDuplicateGRN) {
		t.Errorf("expected ErrDuplicateGRN, got: %v", err)
	}

	found, err := adapter.DeleteChallan(ctx, 987654321)
	if err != nil || found {
		t.Errorf("expected not found without error, got found=%v err=%v", found, err)
	}
}

func TestChallan_MalformedGRNDoesNotAdvanceSequence(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	// CAST('-1' AS UNSIGNED) is the largest uint64
	bad := strconv.FormatInt(-(1 + time.Now().UnixNano()%1e9), 10)
	if _, err := db.ExecContext(ctx, `
		INSERT INTO inward_lc_challan (grn_no, grn_date, supplier_id, item_id, qty)
		VALUES (?, '2024-05-03', 1, 1, 1)`, bad); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	defer db.Exec(`DELETE FROM inward_lc_challan WHERE grn_no = ?`, bad)

	next, err := adapter.NextGRN(ctx)
	if err != nil {
		t.Fatalf("NextGRN failed: %v", err)
	}
	n, err := strconv.ParseUint(next, 10, 64)
	if err != nil || n == 0 || n > domain.MaxGRN {
		t.Errorf("expected next grn within 1..%d, got %q", domain.MaxGRN, next)
	}

	c, err := adapter.CreateChallanWithNextGRN(ctx, domain.Challan{
		GRNDate:    domain.NewDate(2024, time.May, 3),
		SupplierID: 1,
		ItemID:     1,
		Qty:        qty(1),
	})
	if err != nil {
		t.Fatalf("CreateChallanWithNextGRN failed: %v", err)
	}
	defer db.Exec(`DELETE FROM inward_lc_challan WHERE id = ?`, c.ID)

	if c.GRNNo == "000" {
		t.Error("allocation wrapped to 000")
	}
}
