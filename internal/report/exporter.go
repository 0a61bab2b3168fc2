package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/verifier/internal/verify"
	"github.com/google/uuid"
)

// DefaultFilePrefix names downloaded reports.
const DefaultFilePrefix = "easysol-report"

// Download is a finished export ready to stream to the client.
type Download struct {
	ID          string
	FileName    string
	ContentType string
	Data        []byte
	Records     int
}

// Exporter builds report records and renders them through a Transport.
type Exporter struct {
	transport Transport
	limiter   *Limiter
	prefix    string
	now       func() time.Time
	logger    *slog.Logger
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithLimiter bounds concurrent exports.
func WithLimiter(l *Limiter) ExporterOption {
	return func(e *Exporter) { e.limiter = l }
}

// WithFilePrefix sets the download file name prefix.
func WithFilePrefix(prefix string) ExporterOption {
	return func(e *Exporter) {
		if prefix != "" {
			e.prefix = prefix
		}
	}
}

// WithClock overrides the time source used for file names.
func WithClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExporterOption {
	return func(e *Exporter) { e.logger = l }
}

// NewExporter creates an exporter using transport.
func NewExporter(transport Transport, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		transport: transport,
		limiter:   NewLimiter(DefaultMaxConcurrent, DefaultMaxWait),
		prefix:    DefaultFilePrefix,
		now:       time.Now,
		logger:    slog.Default().With("component", "report"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export renders the exportable items. supplierCode fills SuppCode for
// records that lack one. Nothing is retried; a failed export leaves no state.
func (e *Exporter) Export(ctx context.Context, items []verify.TrackedItem, supplierCode string) (*Download, error) {
	records, err := Build(items, supplierCode)
	if err != nil {
		return nil, err
	}

	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.limiter.Release()

	id := uuid.NewString()
	start := time.Now()

	blob, err := e.transport.Send(ctx, records)
	if err != nil {
		e.logger.Error("report export failed",
			"export_id", id,
			"records", len(records),
			"error", err,
		)
		return nil, fmt.Errorf("export report: %w", err)
	}

	d := &Download{
		ID:          id,
		FileName:    FileName(e.prefix, e.now(), blob.ContentType),
		ContentType: blob.ContentType,
		Data:        blob.Data,
		Records:     len(records),
	}

	e.logger.Info("report exported",
		"export_id", id,
		"records", len(records),
		"file", d.FileName,
		"bytes", len(d.Data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return d, nil
}

// FileName returns <prefix>-YYYY-MM-DD.<csv|xlsx> for the given content type.
func FileName(prefix string, at time.Time, contentType string) string {
	return fmt.Sprintf("%s-%s.%s", prefix, at.UTC().Format("2006-01-02"), Extension(contentType))
}
