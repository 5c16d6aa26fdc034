package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	grnWidth = 3
	FirstGRN = "001"

	// MaxGRNDigits matches the grn_no column width
	MaxGRNDigits = 16
	// MaxGRN is the largest number that fits MaxGRNDigits
	MaxGRN uint64 = 9999999999999999
)

var ErrGRNExhausted = errors.New("grn sequence exhausted")

// Challan is a goods-receipt note raised against a letter-of-credit delivery.
type Challan struct {
	ID          int64           `json:"id"`
	GRNNo       string          `json:"grn_no"`
	GRNDate     Date            `json:"grn_date"`
	SupplierID  int64           `json:"supplier_id"`
	ChallanNo   *string         `json:"challan_no"`
	ChallanDate *Date           `json:"challan_date"`
	ItemID      int64           `json:"item_id"`
	ItemName    *string         `json:"item_name"`
	ProcessID   *int64          `json:"process_id"`
	Qty         decimal.Decimal `json:"qty"`
}

// FormatGRN renders n zero-padded to the GRN width. Values wider than the
// width are rendered in full.
func FormatGRN(n uint64) string {
	return fmt.Sprintf("%0*d", grnWidth, n)
}

// NextGRN returns the number following the current maximum.
func NextGRN(currentMax uint64) (string, error) {
	if currentMax >= MaxGRN {
		return "", fmt.Errorf("%w: current max %d", ErrGRNExhausted, currentMax)
	}
	return FormatGRN(currentMax + 1), nil
}

// ValidGRN reports whether s is a GRN number the allocator can count past:
// one to MaxGRNDigits ASCII digits.
func ValidGRN(s string) bool {
	if len(s) == 0 || len(s) > MaxGRNDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
