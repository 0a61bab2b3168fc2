package core

import (
	"strings"
)

// Project applies mapping to the parsed rows and returns canonical records.
// Column lookup is case-insensitive. Rows whose mapped values are all empty,
// and rows without an item code, are dropped.
func Project(rows []RawRecord, mapping FieldMapping) []CanonicalRecord {
	records := make([]CanonicalRecord, 0, len(rows))
	for _, row := range rows {
		lower := lowerKeys(row)
		get := func(field string) string {
			col := strings.TrimSpace(mapping[field])
			if col == "" {
				return ""
			}
			if v, ok := row[col]; ok {
				return strings.TrimSpace(v)
			}
			return strings.TrimSpace(lower[strings.ToLower(col)])
		}

		rec := CanonicalRecord{
			ItemCode:     get(FieldItem),
			Name:         get(FieldName),
			Batch:        get(FieldBatch),
			MRP:          ParseDecimal(get(FieldMRP)),
			Pack:         get(FieldPack),
			Expiry:       get(FieldExpiry),
			Quantity:     ParseQuantity(get(FieldQuantity)),
			FreeQuantity: ParseQuantity(get(FieldFreeQuantity)),
			Billing:      ResolveBilling(row),
		}

		if rec.ItemCode == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}

func lowerKeys(row RawRecord) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[strings.ToLower(k)] = v
	}
	return out
}
