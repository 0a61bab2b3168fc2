package core

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Canonical field names. These are the keys of a FieldMapping and the header
// row of the canonical CSV download.
const (
	FieldItem         = "item"
	FieldName         = "name"
	FieldBatch        = "batch"
	FieldMRP          = "mrp"
	FieldPack         = "pack"
	FieldExpiry       = "Expiry"
	FieldQuantity     = "quantity"
	FieldFreeQuantity = "freequantity"
)

// CanonicalFields lists the canonical schema in display and download order.
var CanonicalFields = []string{
	FieldItem,
	FieldName,
	FieldBatch,
	FieldMRP,
	FieldPack,
	FieldExpiry,
	FieldQuantity,
	FieldFreeQuantity,
}

// RequiredFields must be mapped before a mapping can be applied.
var RequiredFields = []string{FieldItem, FieldName}

// RawRecord is one parsed CSV row keyed by header name.
type RawRecord map[string]string

// Table is the parser output: the header row plus every valid data row.
type Table struct {
	Headers []string
	Rows    []RawRecord
}

// CanonicalRecord is a mapped CSV row. It is created once when the mapping is
// applied and never modified afterwards.
type CanonicalRecord struct {
	ItemCode     string
	Name         string
	Batch        string
	MRP          decimal.Decimal
	Pack         string
	Expiry       string
	Quantity     int
	FreeQuantity int

	// Billing carries passthrough attributes (bill number, tax rates, scheme
	// codes, ...) keyed by canonical billing name. See BillingFields.
	Billing map[string]string
}

// Allowed returns the scan ceiling for the record: quantity plus free quantity.
func (r CanonicalRecord) Allowed() int {
	return r.Quantity + r.FreeQuantity
}

// Value returns the canonical field value as display text.
func (r CanonicalRecord) Value(field string) string {
	switch field {
	case FieldItem:
		return r.ItemCode
	case FieldName:
		return r.Name
	case FieldBatch:
		return r.Batch
	case FieldMRP:
		return r.MRP.String()
	case FieldPack:
		return r.Pack
	case FieldExpiry:
		return r.Expiry
	case FieldQuantity:
		return strconv.Itoa(r.Quantity)
	case FieldFreeQuantity:
		return strconv.Itoa(r.FreeQuantity)
	}
	return r.Billing[field]
}
