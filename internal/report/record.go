// Package report flattens the tracked verification items into the billing
// report format and hands the records to a transport that renders the file.
package report

import (
	"errors"
	"strconv"
	"strings"

	"github.com/JonMunkholm/verifier/internal/core"
	"github.com/JonMunkholm/verifier/internal/verify"
)

// ErrNoExportableItems is returned when no item is verified or failed yet.
var ErrNoExportableItems = errors.New("no exportable items")

// UnknownProduct is the name used when neither the item nor its record has one.
const UnknownProduct = "Unknown Product"

// Record is one row of the billing report. Field names follow the report
// service's wire format.
type Record struct {
	BillNo       string  `json:"BillNo"`
	CGST         float64 `json:"CGST"`
	Discount     float64 `json:"Discount"`
	Expiry       string  `json:"Expiry"`
	FTrate       float64 `json:"FTrate"`
	HSNCode      string  `json:"HSNCode"`
	IGST         float64 `json:"IGST"`
	SGST         float64 `json:"SGST"`
	SRate        float64 `json:"SRate"`
	Scm1         float64 `json:"Scm1"`
	Scm2         float64 `json:"Scm2"`
	ScmPer       float64 `json:"ScmPer"`
	Batch        string  `json:"batch"`
	FreeQuantity float64 `json:"freequantity"`
	Item         string  `json:"item"`
	MRP          float64 `json:"mrp"`
	Name         string  `json:"name"`
	Pack         string  `json:"pack"`
	Quantity     float64 `json:"quantity"`
	SuppCode     string  `json:"SuppCode"`
}

// Columns is the column order used by tabular renderings of a Record.
var Columns = []string{
	"BillNo", "CGST", "Discount", "Expiry", "FTrate", "HSNCode", "IGST", "SGST",
	"SRate", "Scm1", "Scm2", "ScmPer", "batch", "freequantity", "item", "mrp",
	"name", "pack", "quantity", "SuppCode",
}

// Values returns the record's values in Columns order.
func (r Record) Values() []any {
	return []any{
		r.BillNo, r.CGST, r.Discount, r.Expiry, r.FTrate, r.HSNCode, r.IGST, r.SGST,
		r.SRate, r.Scm1, r.Scm2, r.ScmPer, r.Batch, r.FreeQuantity, r.Item, r.MRP,
		r.Name, r.Pack, r.Quantity, r.SuppCode,
	}
}

// Exportable reports whether an item belongs in the report.
func Exportable(it verify.TrackedItem) bool {
	return it.Status == verify.StatusVerified || it.Status == verify.StatusFailed
}

// Build converts the exportable items to report records. Values come from the
// live item first and from the item's CSV record second. supplierCode fills
// SuppCode when neither carries one.
func Build(items []verify.TrackedItem, supplierCode string) ([]Record, error) {
	sources := make(map[string]*core.CanonicalRecord)
	for _, it := range items {
		if it.Source == nil {
			continue
		}
		if _, ok := sources[it.Source.ItemCode]; !ok {
			sources[it.Source.ItemCode] = it.Source
		}
	}

	var out []Record
	for _, it := range items {
		if !Exportable(it) {
			continue
		}
		src := it.Source
		if src == nil {
			src = sources[it.ItemCode()]
		}
		out = append(out, buildRecord(it, src, supplierCode))
	}

	if len(out) == 0 {
		return nil, ErrNoExportableItems
	}
	return out, nil
}

func buildRecord(it verify.TrackedItem, src *core.CanonicalRecord, supplierCode string) Record {
	f := fields{item: it, src: src}

	rec := Record{
		BillNo:       f.text(core.BillingBillNo, core.NotAvailable),
		CGST:         f.number(core.BillingCGST),
		Discount:     f.number(core.BillingDiscount),
		Expiry:       f.text(core.FieldExpiry, core.NotAvailable),
		FTrate:       f.number(core.BillingFTRate),
		HSNCode:      f.text(core.BillingHSNCode, core.NotAvailable),
		IGST:         f.number(core.BillingIGST),
		SGST:         f.number(core.BillingSGST),
		SRate:        f.number(core.BillingSRate),
		Scm1:         f.number(core.BillingScm1),
		Scm2:         f.number(core.BillingScm2),
		ScmPer:       f.number(core.BillingScmPer),
		Batch:        f.text(core.FieldBatch, core.NotAvailable),
		FreeQuantity: f.number(core.FieldFreeQuantity),
		Item:         f.text(core.FieldItem, core.NotAvailable),
		MRP:          f.number(core.FieldMRP),
		Name:         f.text(core.FieldName, UnknownProduct),
		Pack:         f.text(core.FieldPack, core.NotAvailable),
		Quantity:     f.number(core.FieldQuantity),
		SuppCode:     f.text(core.BillingSuppCode, ""),
	}
	if rec.SuppCode == "" {
		rec.SuppCode = core.StringOr(supplierCode, core.NotAvailable)
	}
	return rec
}

// fields looks values up on the live item, then on the CSV record.
type fields struct {
	item verify.TrackedItem
	src  *core.CanonicalRecord
}

func (f fields) lookup(field string) (string, bool) {
	if v, ok := f.live(field); ok {
		return v, true
	}
	if f.src != nil {
		if v := strings.TrimSpace(f.src.Value(field)); v != "" && !isZeroCount(field, v) {
			return v, true
		}
	}
	return "", false
}

// live reads the field from the event product. Counts and prices of zero mean
// the event did not carry them.
func (f fields) live(field string) (string, bool) {
	p := f.item.Product
	switch field {
	case core.FieldItem:
		return nonEmpty(f.item.ItemCode())
	case core.FieldName:
		return nonEmpty(p.Name)
	case core.FieldBatch:
		return nonEmpty(p.Batch)
	case core.FieldPack:
		return nonEmpty(p.Pack)
	case core.FieldExpiry:
		return nonEmpty(p.Expiry)
	case core.FieldMRP:
		if p.MRP.IsZero() {
			return "", false
		}
		return p.MRP.String(), true
	case core.FieldQuantity:
		if p.Quantity == 0 {
			return "", false
		}
		return strconv.Itoa(p.Quantity), true
	case core.FieldFreeQuantity:
		if p.FreeQuantity == 0 {
			return "", false
		}
		return strconv.Itoa(p.FreeQuantity), true
	}
	return core.Resolve(p.Attributes, field)
}

func (f fields) text(field, def string) string {
	if v, ok := f.lookup(field); ok {
		return v
	}
	return def
}

func (f fields) number(field string) float64 {
	v, _ := f.lookup(field)
	return core.ParseFloat(v)
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

func isZeroCount(field, v string) bool {
	switch field {
	case core.FieldQuantity, core.FieldFreeQuantity, core.FieldMRP:
		return core.ParseFloat(v) == 0
	}
	return false
}
