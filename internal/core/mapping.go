package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingMapping is returned when a required canonical field has no
// source column.
var ErrMissingMapping = errors.New("missing field mapping")

// ErrInvalidMapping is returned when a mapping names an unknown canonical
// field or a column that is not in the upload.
var ErrInvalidMapping = errors.New("invalid field mapping")

// FieldMapping maps canonical field name -> source column name.
type FieldMapping map[string]string

// persistedNames translates canonical fields to the column names used by the
// persisted mapping records.
var persistedNames = map[string]string{
	FieldItem:         "Code",
	FieldName:         "Name",
	FieldBatch:        "Batch",
	FieldMRP:          "MRP",
	FieldPack:         "Pack",
	FieldExpiry:       "Expiry",
	FieldQuantity:     "Quantity",
	FieldFreeQuantity: "Fquantity",
}

// IsCanonicalField reports whether name is part of the canonical schema.
func IsCanonicalField(name string) bool {
	_, ok := persistedNames[name]
	return ok
}

// Clone returns an independent copy of the mapping.
func (m FieldMapping) Clone() FieldMapping {
	out := make(FieldMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Missing returns the required fields that have no source column, sorted.
func (m FieldMapping) Missing() []string {
	var missing []string
	for _, f := range RequiredFields {
		if strings.TrimSpace(m[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Validate checks required fields, rejects unknown canonical fields and, when
// headers is non-nil, columns that do not appear in the upload.
func (m FieldMapping) Validate(headers []string) error {
	if missing := m.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: please map these required fields: %s", ErrMissingMapping, strings.Join(missing, ", "))
	}

	var unknown []string
	for field := range m {
		if !IsCanonicalField(field) {
			unknown = append(unknown, field)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown fields %s", ErrInvalidMapping, strings.Join(unknown, ", "))
	}

	if headers == nil {
		return nil
	}
	for _, field := range CanonicalFields {
		col := strings.TrimSpace(m[field])
		if col == "" {
			continue
		}
		if headerIndex(headers, col) < 0 {
			return fmt.Errorf("%w: column not found for %s: %q", ErrInvalidMapping, field, col)
		}
	}
	return nil
}

// Persisted converts the mapping to persisted column names. Unmapped fields
// are present with an empty value.
func (m FieldMapping) Persisted() map[string]string {
	out := make(map[string]string, len(persistedNames))
	for field, name := range persistedNames {
		out[name] = m[field]
	}
	return out
}

// MappingFromPersisted converts a persisted record back to canonical names.
// Unknown names and empty columns are skipped.
func MappingFromPersisted(persisted map[string]string) FieldMapping {
	m := make(FieldMapping)
	for field, name := range persistedNames {
		if col := strings.TrimSpace(persisted[name]); col != "" {
			m[field] = col
		}
	}
	return m
}

// SuggestMapping proposes a mapping by matching headers against the alias
// table (case-insensitive). Used when no persisted mapping exists.
func SuggestMapping(headers []string) FieldMapping {
	m := make(FieldMapping)
	for _, field := range CanonicalFields {
		for _, alias := range aliases[field] {
			if i := headerIndex(headers, alias); i >= 0 {
				m[field] = headers[i]
				break
			}
		}
	}
	return m
}

// headerIndex finds col in headers, case-insensitively.
func headerIndex(headers []string, col string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(col)) {
			return i
		}
	}
	return -1
}
