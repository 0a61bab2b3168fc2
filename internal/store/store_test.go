package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/JonMunkholm/verifier/internal/core"
	db "github.com/JonMunkholm/verifier/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB records statements and serves canned rows.
type fakeDB struct {
	execSQL  string
	execArgs []any
	execErr  error

	queryArgs []any
	rows      [][]any

	row pgx.Row
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL, f.execArgs = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	f.queryArgs = args
	return &fakeRows{rows: f.rows, pos: -1}, nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// mappingRow scans a supplier_mappings row given as persisted-name values.
type mappingRow struct {
	code   string
	values []string
}

func (r mappingRow) Scan(dest ...any) error {
	*dest[0].(*string) = r.code
	for i, v := range r.values {
		t := dest[i+1].(*pgtype.Text)
		*t = toPgText(v)
	}
	return nil
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos], nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	for i, v := range r.rows[r.pos] {
		*dest[i].(*string) = v.(string)
	}
	return nil
}

func TestGetMapping(t *testing.T) {
	fake := &fakeDB{row: mappingRow{
		code:   "S01",
		values: []string{"ItemCode", "Description", "", "MRP", "", "Exp", "Qty", ""},
	}}

	m, err := New(fake).GetMapping(context.Background(), " S01 ")
	require.NoError(t, err)
	assert.Equal(t, core.FieldMapping{
		core.FieldItem:     "ItemCode",
		core.FieldName:     "Description",
		core.FieldMRP:      "MRP",
		core.FieldExpiry:   "Exp",
		core.FieldQuantity: "Qty",
	}, m)
}

func TestGetMapping_NotFound(t *testing.T) {
	fake := &fakeDB{row: errRow{err: pgx.ErrNoRows}}

	_, err := New(fake).GetMapping(context.Background(), "S404")
	assert.ErrorIs(t, err, ErrMappingNotFound)
	assert.Contains(t, err.Error(), "S404")
}

func TestGetMapping_DatabaseError(t *testing.T) {
	boom := errors.New("connection reset")
	fake := &fakeDB{row: errRow{err: boom}}

	_, err := New(fake).GetMapping(context.Background(), "S01")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMappingNotFound)
}

func TestGetMapping_RequiresCode(t *testing.T) {
	_, err := New(&fakeDB{}).GetMapping(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNoSupplierCode)
}

func TestSaveMapping(t *testing.T) {
	fake := &fakeDB{}
	err := New(fake).SaveMapping(context.Background(), "S01", core.FieldMapping{
		core.FieldItem: "ItemCode",
		core.FieldName: "Description",
		core.FieldPack: " Pack ",
	})
	require.NoError(t, err)

	assert.True(t, strings.Contains(fake.execSQL, "INSERT INTO supplier_mappings"))
	require.Len(t, fake.execArgs, 9)
	assert.Equal(t, "S01", fake.execArgs[0])
	assert.Equal(t, pgtype.Text{String: "ItemCode", Valid: true}, fake.execArgs[1])
	assert.Equal(t, pgtype.Text{String: "Description", Valid: true}, fake.execArgs[2])
	assert.Equal(t, pgtype.Text{Valid: false}, fake.execArgs[3], "batch unmapped")
	assert.Equal(t, pgtype.Text{String: "Pack", Valid: true}, fake.execArgs[5])
}

func TestSaveMapping_Errors(t *testing.T) {
	assert.ErrorIs(t, New(&fakeDB{}).SaveMapping(context.Background(), "", nil), ErrNoSupplierCode)

	boom := errors.New("disk full")
	err := New(&fakeDB{execErr: boom}).SaveMapping(context.Background(), "S01", core.FieldMapping{})
	assert.ErrorIs(t, err, boom)
}

func TestSearchSuppliers(t *testing.T) {
	fake := &fakeDB{rows: [][]any{
		{"S01", "Acme Pharma"},
		{"S02", "Acme Labs"},
	}}

	got, err := New(fake).SearchSuppliers(context.Background(), "ac")
	require.NoError(t, err)
	assert.Equal(t, []Supplier{{VCode: "S01", Name: "Acme Pharma"}, {VCode: "S02", Name: "Acme Labs"}}, got)
	assert.Equal(t, []any{"ac%", int32(MaxSearchResults)}, fake.queryArgs)
}

func TestSearchSuppliers_EmptyQuery(t *testing.T) {
	fake := &fakeDB{}
	got, err := New(fake).SearchSuppliers(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, fake.queryArgs, "no query for empty search")
}

func TestAddSupplier(t *testing.T) {
	fake := &fakeDB{}
	require.NoError(t, New(fake).AddSupplier(context.Background(), Supplier{VCode: " S03 ", Name: " Zen Meds "}))
	assert.Equal(t, []any{"S03", "Zen Meds"}, fake.execArgs)

	assert.ErrorIs(t, New(fake).AddSupplier(context.Background(), Supplier{Name: "x"}), ErrNoSupplierCode)
}

func TestPrefixPattern(t *testing.T) {
	tests := []struct{ in, want string }{
		{"acme", "acme%"},
		{"50%", `50\%%`},
		{"a_b", `a\_b%`},
		{`c:\x`, `c:\\x%`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, prefixPattern(tt.in), tt.in)
	}
}

func TestMappingRoundTrip(t *testing.T) {
	in := core.FieldMapping{
		core.FieldItem:         "Code",
		core.FieldName:         "Item Name",
		core.FieldFreeQuantity: "Free",
	}
	p := upsertParams("S01", in)
	row := db.SupplierMapping{
		SuppCode:  p.SuppCode,
		Code:      p.Code,
		Name:      p.Name,
		Batch:     p.Batch,
		Mrp:       p.Mrp,
		Pack:      p.Pack,
		Expiry:    p.Expiry,
		Quantity:  p.Quantity,
		Fquantity: p.Fquantity,
	}
	assert.Equal(t, in, mappingFromRow(row))
}

func TestMigrationSource(t *testing.T) {
	src, err := migrationSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	r, _, err := src.ReadUp(first)
	require.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(body), "supplier_mappings")
	assert.Contains(t, string(body), "suppliers")
}

func TestRunMigrations_NilHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
