// Package session holds the operator's working upload: the parsed CSV, its
// field mapping and selected supplier, and applies it to the reconciler.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/verifier/internal/core"
	"github.com/JonMunkholm/verifier/internal/report"
	"github.com/JonMunkholm/verifier/internal/store"
	"github.com/JonMunkholm/verifier/internal/verify"
	"github.com/google/uuid"
)

// PublishTimeout bounds the seed publication that follows an apply.
var PublishTimeout = 30 * time.Second

var (
	// ErrNoSession is returned when no CSV has been uploaded.
	ErrNoSession = errors.New("no active session")

	// ErrNotApplied is returned when the mapping has not been applied yet.
	ErrNotApplied = errors.New("mapping not applied")

	// ErrNoSupplier is returned when an operation needs a selected supplier.
	ErrNoSupplier = errors.New("no supplier selected")
)

// Mapping sources reported in a Summary.
const (
	SourceSuggested = "suggested"
	SourcePersisted = "persisted"
	SourceManual    = "manual"
)

// MappingStore persists field mappings per supplier.
type MappingStore interface {
	GetMapping(ctx context.Context, supplierCode string) (core.FieldMapping, error)
	SaveMapping(ctx context.Context, supplierCode string, mapping core.FieldMapping) error
}

// Publisher announces applied records to the verification service.
type Publisher interface {
	Publish(ctx context.Context, records []core.CanonicalRecord) error
}

// Exporter renders a report from tracked items.
type Exporter interface {
	Export(ctx context.Context, items []verify.TrackedItem, supplierCode string) (*report.Download, error)
}

// Summary describes the current session.
type Summary struct {
	ID            string            `json:"id"`
	FileName      string            `json:"file_name"`
	Headers       []string          `json:"headers"`
	RowCount      int               `json:"row_count"`
	Sample        []core.RawRecord  `json:"sample,omitempty"`
	Mapping       core.FieldMapping `json:"mapping"`
	MappingSource string            `json:"mapping_source"`
	Missing       []string          `json:"missing_fields"`
	Supplier      string            `json:"supplier,omitempty"`
	Applied       bool              `json:"applied"`
	RecordCount   int               `json:"record_count"`
	Published     bool              `json:"published"`
	LoadedAt      time.Time         `json:"loaded_at"`
}

type state struct {
	id            string
	fileName      string
	table         *core.Table
	mapping       core.FieldMapping
	mappingSource string
	supplier      string
	records       []core.CanonicalRecord // nil until applied
	published     bool
	loadedAt      time.Time
}

// Options configures a Service.
type Options struct {
	MaxFileSize int64
	PreviewRows int
	Publisher   Publisher // optional
	Logger      *slog.Logger
}

// Service is safe for concurrent use. It holds at most one session.
type Service struct {
	store      MappingStore
	reconciler *verify.Reconciler
	exporter   Exporter
	publisher  Publisher

	maxFileSize int64
	previewRows int
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	current  *state
	supplier string // survives uploads
}

// NewService creates a session service.
func NewService(ms MappingStore, rec *verify.Reconciler, exp Exporter, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "session")
	}
	return &Service{
		store:       ms,
		reconciler:  rec,
		exporter:    exp,
		publisher:   opts.Publisher,
		maxFileSize: opts.MaxFileSize,
		previewRows: opts.PreviewRows,
		logger:      logger,
		now:         time.Now,
	}
}

// LoadCSV parses an upload and makes it the current session. The previous
// session and the reconciler state are discarded. When a supplier is selected
// and has a persisted mapping that fits the new headers, it is used;
// otherwise a mapping is suggested from the headers.
func (s *Service) LoadCSV(ctx context.Context, fileName string, r io.Reader) (Summary, error) {
	data, err := core.ReadInput(r, s.maxFileSize)
	if err != nil {
		return Summary{}, err
	}
	table, err := core.ParseCSV(data)
	if err != nil {
		return Summary{}, err
	}

	st := &state{
		id:            uuid.New().String(),
		fileName:      fileName,
		table:         table,
		mapping:       core.SuggestMapping(table.Headers),
		mappingSource: SourceSuggested,
		loadedAt:      s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st.supplier = s.supplier
	if st.supplier != "" {
		if m, ok := s.persistedMapping(ctx, st.supplier, table.Headers); ok {
			st.mapping, st.mappingSource = m, SourcePersisted
		}
	}

	s.current = st
	s.reconciler.Reset()

	s.logger.Info("csv loaded",
		"session_id", st.id,
		"file", fileName,
		"headers", len(table.Headers),
		"rows", len(table.Rows),
		"mapping_source", st.mappingSource,
	)
	return s.summaryLocked(), nil
}

// persistedMapping returns the stored mapping of supplier when every mapped
// column exists in headers. Lookup failures are logged and treated as absent.
func (s *Service) persistedMapping(ctx context.Context, supplier string, headers []string) (core.FieldMapping, bool) {
	m, err := s.store.GetMapping(ctx, supplier)
	if err != nil {
		if !errors.Is(err, store.ErrMappingNotFound) {
			s.logger.Warn("mapping lookup failed", "supplier", supplier, "error", err)
		}
		return nil, false
	}
	if err := m.Validate(headers); err != nil {
		s.logger.Info("persisted mapping does not fit upload", "supplier", supplier, "error", err)
		return nil, false
	}
	return m, true
}

// Summary returns the current session.
func (s *Service) Summary() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Summary{}, ErrNoSession
	}
	return s.summaryLocked(), nil
}

// Supplier returns the selected supplier code, empty if none.
func (s *Service) Supplier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supplier
}

// SelectSupplier sets the supplier and, when it has a persisted mapping
// that fits the upload, replaces the current mapping with it. A mapping that
// does not fit is ignored, as on upload.
func (s *Service) SelectSupplier(ctx context.Context, code string) (Summary, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Summary{}, ErrNoSupplier
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Summary{}, ErrNoSession
	}

	m, err := s.store.GetMapping(ctx, code)
	switch {
	case errors.Is(err, store.ErrMappingNotFound):
		// keep the current mapping
	case err != nil:
		return Summary{}, fmt.Errorf("select supplier %s: %w", code, err)
	default:
		if err := m.Validate(s.current.table.Headers); err != nil {
			s.logger.Info("persisted mapping does not fit upload", "supplier", code, "error", err)
			break
		}
		s.current.mapping = m
		s.current.mappingSource = SourcePersisted
		s.current.records = nil
		s.current.published = false
	}

	s.supplier = code
	s.current.supplier = code
	s.logger.Info("supplier selected", "session_id", s.current.id, "supplier", code, "mapping_source", s.current.mappingSource)
	return s.summaryLocked(), nil
}

// SetMapping replaces the field mapping. The session must be applied again.
func (s *Service) SetMapping(m core.FieldMapping) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Summary{}, ErrNoSession
	}

	m = trimMapping(m)
	if err := m.Validate(s.current.table.Headers); err != nil {
		return Summary{}, err
	}

	s.current.mapping = m
	s.current.mappingSource = SourceManual
	s.current.records = nil
	s.current.published = false
	return s.summaryLocked(), nil
}

// SaveMapping persists the current mapping for the selected supplier.
func (s *Service) SaveMapping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoSession
	}
	if s.current.supplier == "" {
		return ErrNoSupplier
	}
	if err := s.current.mapping.Validate(s.current.table.Headers); err != nil {
		return err
	}

	if err := s.store.SaveMapping(ctx, s.current.supplier, s.current.mapping); err != nil {
		return err
	}
	s.logger.Info("mapping saved", "session_id", s.current.id, "supplier", s.current.supplier)
	return nil
}

// Apply projects the rows through the mapping, seeds the reconciler and
// publishes the records. A failed publication is logged and reported in the
// summary; it does not fail the apply.
func (s *Service) Apply(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return Summary{}, ErrNoSession
	}
	st := s.current
	if err := st.mapping.Validate(st.table.Headers); err != nil {
		s.mu.Unlock()
		return Summary{}, err
	}

	records := core.Project(st.table.Rows, st.mapping)
	if len(records) == 0 {
		s.mu.Unlock()
		return Summary{}, fmt.Errorf("%w: no rows with an item code", core.ErrMalformedInput)
	}

	s.reconciler.Seed(records)
	st.records = records
	st.published = false
	s.mu.Unlock()

	logger := s.logger.With("session_id", st.id)
	published := false
	if s.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, PublishTimeout)
		err := s.publisher.Publish(pubCtx, records)
		cancel()
		if err != nil {
			logger.Warn("publish records failed", "records", len(records), "error", err)
		} else {
			published = true
		}
	}

	logger.Info("mapping applied",
		"records", len(records),
		"dropped", len(st.table.Rows)-len(records),
		"published", published,
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != st {
		return Summary{}, ErrNoSession
	}
	if len(st.records) > 0 && &st.records[0] == &records[0] {
		st.published = published
	}
	return s.summaryLocked(), nil
}

// Discard ends the session and clears the reconciler. The supplier selection
// is kept.
func (s *Service) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.logger.Info("session discarded", "session_id", s.current.id)
	}
	s.current = nil
	s.reconciler.Reset()
}

// DownloadCSV writes the applied records as canonical CSV.
func (s *Service) DownloadCSV(w io.Writer) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	records := s.current.records
	s.mu.Unlock()

	if records == nil {
		return ErrNotApplied
	}
	return core.WriteCSV(w, records)
}

// Export renders a report of the tracked items in view order.
func (s *Service) Export(ctx context.Context) (*report.Download, error) {
	return s.exporter.Export(ctx, s.reconciler.View(), s.Supplier())
}

func (s *Service) summaryLocked() Summary {
	st := s.current
	sample := st.table.Rows
	if len(sample) > s.previewRows {
		sample = sample[:s.previewRows]
	}
	missing := st.mapping.Missing()
	if missing == nil {
		missing = []string{}
	}
	return Summary{
		ID:            st.id,
		FileName:      st.fileName,
		Headers:       append([]string(nil), st.table.Headers...),
		RowCount:      len(st.table.Rows),
		Sample:        sample,
		Mapping:       st.mapping.Clone(),
		MappingSource: st.mappingSource,
		Missing:       missing,
		Supplier:      st.supplier,
		Applied:       st.records != nil,
		RecordCount:   len(st.records),
		Published:     st.published,
		LoadedAt:      st.loadedAt,
	}
}

// trimMapping drops blank entries so an unmapped optional field is absent.
func trimMapping(m core.FieldMapping) core.FieldMapping {
	out := make(core.FieldMapping, len(m))
	for field, col := range m {
		if col = strings.TrimSpace(col); col != "" {
			out[strings.TrimSpace(field)] = col
		}
	}
	return out
}
