package domain

import "github.com/shopspring/decimal"

// Inward is one goods-receipt event together with its received parts.
type Inward struct {
	ID           int64        `json:"inward_id"`
	Date         Date         `json:"inward_date"`
	CustomerID   int64        `json:"customer_id"`
	CustomerName string       `json:"customer_name"`
	Parts        []InwardLine `json:"parts"`
}

type InwardLine struct {
	ID       int64           `json:"-"`
	PartID   int64           `json:"part_id"`
	PartName string          `json:"part_name"`
	PartCode string          `json:"part_code,omitempty"`
	Qty      decimal.Decimal `json:"qty"`
}

// InwardInput carries the writable fields of an Inward for create and update.
type InwardInput struct {
	Date       Date
	CustomerID int64
	Lines      []LineInput
}

type LineInput struct {
	PartID int64
	Qty    decimal.Decimal
}

// Quantities are stored as DECIMAL(14, 3).
const QtyScale = 3

var qtyLimit = decimal.New(1, 11)

// QtyFits reports whether q can be stored without rounding or overflow.
func QtyFits(q decimal.Decimal) bool {
	return q.Equal(q.Round(QtyScale)) && q.Abs().LessThan(qtyLimit)
}
