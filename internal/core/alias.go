package core

import "strings"

// Canonical billing attribute names carried in CanonicalRecord.Billing and
// emitted by the report exporter.
const (
	BillingBillNo   = "BillNo"
	BillingCGST     = "CGST"
	BillingDiscount = "Discount"
	BillingFTRate   = "FTrate"
	BillingHSNCode  = "HSNCode"
	BillingIGST     = "IGST"
	BillingSGST     = "SGST"
	BillingSRate    = "SRate"
	BillingScm1     = "Scm1"
	BillingScm2     = "Scm2"
	BillingScmPer   = "ScmPer"
	BillingSuppCode = "SuppCode"
)

// BillingFields lists the passthrough billing attributes.
var BillingFields = []string{
	BillingBillNo,
	BillingCGST,
	BillingDiscount,
	BillingFTRate,
	BillingHSNCode,
	BillingIGST,
	BillingSGST,
	BillingSRate,
	BillingScm1,
	BillingScm2,
	BillingScmPer,
	BillingSuppCode,
}

// aliases is the single alias-resolution table. Source systems name the same
// attribute differently; the first alias with a non-empty value wins.
var aliases = map[string][]string{
	FieldItem:         {"item", "item_code", "code", "itemCode", "ItemCode"},
	FieldName:         {"name", "Name", "item name"},
	FieldBatch:        {"batch", "Batch"},
	FieldMRP:          {"mrp", "Mrp", "MRP"},
	FieldPack:         {"pack", "Pack"},
	FieldExpiry:       {"Expiry", "expiry", "EXPIRY"},
	FieldQuantity:     {"quantity", "Quantity", "qty"},
	FieldFreeQuantity: {"freequantity", "freeQuantity", "free_quantity", "Fquantity"},

	BillingBillNo:   {"Bill No", "BillNo", "bill_no"},
	BillingCGST:     {"CGST", "cgst"},
	BillingDiscount: {"DIS", "Discount", "discount"},
	BillingFTRate:   {"FTRate", "FTrate", "ftrate"},
	BillingHSNCode:  {"HSNCODE", "HSNCode", "hsn_code"},
	BillingIGST:     {"IGST", "igst"},
	BillingSGST:     {"SGST", "sgst"},
	BillingSRate:    {"SRate", "Srate", "srate"},
	BillingScm1:     {"Scm1", "scm1"},
	BillingScm2:     {"Scm2", "scm2"},
	BillingScmPer:   {"ScmPer", "scmPer", "SCMPer"},
	BillingSuppCode: {"SuppCode", "suppCode", "supp_code"},
}

// Resolve returns the value of a canonical field from attrs by consulting the
// alias table. Exact key matches are tried before case-insensitive ones.
func Resolve(attrs map[string]string, field string) (string, bool) {
	names, ok := aliases[field]
	if !ok {
		names = []string{field}
	}

	for _, name := range names {
		if v := strings.TrimSpace(attrs[name]); v != "" {
			return v, true
		}
	}

	// Case-insensitive fallback for headers like "ITEM" or "Batch No".
	for _, name := range names {
		for k, v := range attrs {
			if strings.EqualFold(k, name) {
				if v = strings.TrimSpace(v); v != "" {
					return v, true
				}
			}
		}
	}
	return "", false
}

// ResolveBilling extracts every billing attribute present in attrs.
func ResolveBilling(attrs map[string]string) map[string]string {
	billing := make(map[string]string)
	for _, field := range BillingFields {
		if v, ok := Resolve(attrs, field); ok {
			billing[field] = v
		}
	}
	return billing
}
