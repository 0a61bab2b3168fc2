// Package store persists supplier field mappings and the supplier directory
// in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/verifier/internal/core"
	db "github.com/JonMunkholm/verifier/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// MaxSearchResults bounds a supplier search.
const MaxSearchResults = 20

// ErrMappingNotFound is returned when no mapping is stored for a supplier.
var ErrMappingNotFound = errors.New("mapping not found")

// ErrNoSupplierCode is returned for operations that need a supplier code.
var ErrNoSupplierCode = errors.New("supplier code is required")

// Supplier is a directory entry.
type Supplier struct {
	VCode string `json:"VCode"`
	Name  string `json:"Name"`
}

// Store wraps the generated queries with domain conversions.
type Store struct {
	q *db.Queries
}

// New creates a store over a pool, connection or transaction.
func New(dbtx db.DBTX) *Store {
	return &Store{q: db.New(dbtx)}
}

// GetMapping returns the persisted mapping of supplierCode in canonical names.
func (s *Store) GetMapping(ctx context.Context, supplierCode string) (core.FieldMapping, error) {
	code := strings.TrimSpace(supplierCode)
	if code == "" {
		return nil, ErrNoSupplierCode
	}

	row, err := s.q.GetSupplierMapping(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrMappingNotFound, code)
		}
		return nil, fmt.Errorf("get mapping %s: %w", code, err)
	}
	return mappingFromRow(row), nil
}

// SaveMapping stores mapping for supplierCode, replacing any previous one.
func (s *Store) SaveMapping(ctx context.Context, supplierCode string, mapping core.FieldMapping) error {
	code := strings.TrimSpace(supplierCode)
	if code == "" {
		return ErrNoSupplierCode
	}
	if err := s.q.UpsertSupplierMapping(ctx, upsertParams(code, mapping)); err != nil {
		return fmt.Errorf("save mapping %s: %w", code, err)
	}
	return nil
}

// SearchSuppliers finds suppliers whose name or code starts with query,
// case-insensitively.
func (s *Store) SearchSuppliers(ctx context.Context, query string) ([]Supplier, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Supplier{}, nil
	}

	rows, err := s.q.SearchSuppliers(ctx, db.SearchSuppliersParams{
		Pattern:    prefixPattern(query),
		MaxResults: MaxSearchResults,
	})
	if err != nil {
		return nil, fmt.Errorf("search suppliers: %w", err)
	}

	out := make([]Supplier, len(rows))
	for i, r := range rows {
		out[i] = Supplier{VCode: r.Vcode, Name: r.Name}
	}
	return out, nil
}

// AddSupplier creates or renames a directory entry.
func (s *Store) AddSupplier(ctx context.Context, sup Supplier) error {
	code := strings.TrimSpace(sup.VCode)
	if code == "" {
		return ErrNoSupplierCode
	}
	err := s.q.UpsertSupplier(ctx, db.UpsertSupplierParams{
		Vcode: code,
		Name:  strings.TrimSpace(sup.Name),
	})
	if err != nil {
		return fmt.Errorf("add supplier %s: %w", code, err)
	}
	return nil
}

/* ----------------------------------------
	Conversions
---------------------------------------- */

func mappingFromRow(row db.SupplierMapping) core.FieldMapping {
	return core.MappingFromPersisted(map[string]string{
		"Code":      fromPgText(row.Code),
		"Name":      fromPgText(row.Name),
		"Batch":     fromPgText(row.Batch),
		"MRP":       fromPgText(row.Mrp),
		"Pack":      fromPgText(row.Pack),
		"Expiry":    fromPgText(row.Expiry),
		"Quantity":  fromPgText(row.Quantity),
		"Fquantity": fromPgText(row.Fquantity),
	})
}

func upsertParams(code string, mapping core.FieldMapping) db.UpsertSupplierMappingParams {
	p := mapping.Persisted()
	return db.UpsertSupplierMappingParams{
		SuppCode:  code,
		Code:      toPgText(p["Code"]),
		Name:      toPgText(p["Name"]),
		Batch:     toPgText(p["Batch"]),
		Mrp:       toPgText(p["MRP"]),
		Pack:      toPgText(p["Pack"]),
		Expiry:    toPgText(p["Expiry"]),
		Quantity:  toPgText(p["Quantity"]),
		Fquantity: toPgText(p["Fquantity"]),
	}
}

// prefixPattern escapes LIKE metacharacters in q and appends a wildcard.
func prefixPattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q) + "%"
}

func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func fromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}
