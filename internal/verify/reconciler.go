package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/verifier/internal/core"
	"github.com/google/uuid"
)

// ErrNoSource is returned by Connect when the reconciler has no event source.
var ErrNoSource = errors.New("no event source configured")

// DefaultEventName is the channel event carrying verification results.
const DefaultEventName = "product_verified"

// EventSource is a live channel emitting named events with JSON payloads.
// Handlers are invoked sequentially from a single goroutine.
type EventSource interface {
	On(event string, handler func(payload []byte))
	Connect(ctx context.Context) error
	Disconnect() error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCapacity sets the maximum number of tracked items.
func WithCapacity(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithSource injects the live event channel.
func WithSource(src EventSource, eventName string) Option {
	return func(r *Reconciler) {
		r.source = src
		if eventName != "" {
			r.eventName = eventName
		}
	}
}

// WithIDGenerator overrides seed item id generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Reconciler) { r.newID = fn }
}

// Reconciler owns the tracked item set.
type Reconciler struct {
	capacity  int
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
	source    EventSource
	eventName string

	mu      sync.Mutex
	records []core.CanonicalRecord
	byCode  map[string]*core.CanonicalRecord
	items   []*TrackedItem // priority order, front is most recently touched
	sort    SortState
	alert   *OverQuantityAlert
	lastErr error
	version uint64

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

// NewReconciler creates an empty reconciler.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		capacity:  DefaultCapacity,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    slog.Default().With("component", "reconciler"),
		eventName: DefaultEventName,
		byCode:    make(map[string]*core.CanonicalRecord),
		sort:      SortState{Direction: DirectionNone},
		subs:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed replaces the whole set with one not_uploaded item per record.
// Alerts, the retained error and the sort selection are cleared.
func (r *Reconciler) Seed(records []core.CanonicalRecord) {
	r.mu.Lock()

	r.records = slices.Clone(records)
	r.byCode = make(map[string]*core.CanonicalRecord, len(r.records))
	ts := r.now()

	r.items = make([]*TrackedItem, 0, len(r.records))
	for i := range r.records {
		rec := &r.records[i]
		if _, seen := r.byCode[rec.ItemCode]; !seen {
			r.byCode[rec.ItemCode] = rec
		}
		r.items = append(r.items, &TrackedItem{
			ID:        r.newID(),
			Source:    rec,
			Status:    StatusNotUploaded,
			Product:   productFromRecord(*rec),
			Message:   "Not Uploaded",
			Timestamp: ts,
			Origin:    OriginSeed,
		})
	}

	r.alert = nil
	r.lastErr = nil
	r.sort = SortState{Direction: DirectionNone}
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("reconciler seeded", "records", len(records))
	r.publish(snap)
}

// Reset discards the session: no records, no items.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.records = nil
	r.byCode = make(map[string]*core.CanonicalRecord)
	r.items = nil
	r.alert = nil
	r.lastErr = nil
	r.sort = SortState{Direction: DirectionNone}
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(snap)
}

// Apply merges one verification event. A malformed event returns an error
// wrapping ErrMalformedEvent; an over-quantity scan returns a Result carrying
// the alert. In both cases the tracked set is unchanged.
func (r *Reconciler) Apply(ev Event) (Result, error) {
	res, snap, err := r.applyLocked(ev)
	r.publish(snap)
	return res, err
}

func (r *Reconciler) applyLocked(ev Event) (res Result, snap Snapshot, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			res = Result{}
			err = fmt.Errorf("%w: processing failed: %v", ErrMalformedEvent, p)
		}
		if err != nil {
			r.lastErr = err
			r.logger.Warn("verification event rejected", "error", err)
		}
		r.version++
		snap = r.snapshotLocked()
	}()

	res, err = r.merge(ev)
	return res, snap, err
}

// merge builds the next item set on a working copy and commits it only when
// every step succeeded. Callers hold r.mu.
func (r *Reconciler) merge(ev Event) (Result, error) {
	product, err := NormalizeProduct(ev.MatchedProduct)
	if err != nil {
		return Result{}, err
	}
	code := product.ItemCode

	source := r.byCode[code]
	scanned := r.totalScannedLocked(code)
	if source != nil && scanned+1 > source.Allowed() {
		alert := &OverQuantityAlert{
			Product:      product,
			Quantity:     source.Quantity,
			FreeQuantity: source.FreeQuantity,
			Allowed:      source.Allowed(),
			Scanned:      scanned + 1,
			RaisedAt:     r.now(),
		}
		r.alert = alert
		r.logger.Warn("quantity exceeded",
			"item_code", code,
			"batch", product.Batch,
			"allowed", alert.Allowed,
			"scanned", alert.Scanned,
		)
		return Result{Alert: alert}, nil
	}

	now := r.now()
	working := slices.Clone(r.items)
	var touched []*TrackedItem
	created := 0

	upsert := func(key mergeKey, update func(*TrackedItem), create func() *TrackedItem) {
		for i, it := range working {
			if it.key() == key {
				next := *it
				update(&next)
				next.ScannedQuantity++
				next.Timestamp = now
				next.Origin = OriginEvent
				working = slices.Delete(working, i, i+1)
				touched = append(touched, &next)
				return
			}
		}
		it := create()
		it.ScannedQuantity = 1
		it.Timestamp = now
		it.Origin = OriginEvent
		touched = append(touched, it)
		created++
	}

	switch {
	case ev.Success:
		key := mergeKey{itemCode: code, batch: product.Batch, status: StatusVerified}
		upsert(key,
			func(it *TrackedItem) {
				it.Product = overlay(it.Product, product)
				it.Similarity = ev.Similarity
				it.Message = "Verified"
				it.Mismatches = nil
			},
			func() *TrackedItem {
				return &TrackedItem{
					ID:         key.id(),
					Source:     source,
					Status:     StatusVerified,
					Product:    product,
					Similarity: ev.Similarity,
					Message:    "Verified",
				}
			},
		)

	case len(ev.Mismatches) > 0:
		for _, reason := range ev.reasons() {
			detail := ev.Mismatches[reason]
			message := fmt.Sprintf("Failed: %s mismatch", reason)
			key := mergeKey{itemCode: code, batch: product.Batch, status: StatusFailed, reason: reason}
			upsert(key,
				func(it *TrackedItem) { it.Message = message },
				func() *TrackedItem {
					return &TrackedItem{
						ID:         key.id(),
						Source:     source,
						Status:     StatusFailed,
						Reason:     reason,
						Product:    product,
						Similarity: ev.Similarity,
						Message:    message,
						Mismatches: map[string]any{reason: detail},
					}
				},
			)
		}

	default:
		key := mergeKey{itemCode: code, batch: product.Batch, status: StatusFailed, reason: GeneralReason}
		upsert(key,
			func(it *TrackedItem) { it.Message = "Failed: General mismatch" },
			func() *TrackedItem {
				return &TrackedItem{
					ID:         key.id(),
					Source:     source,
					Status:     StatusFailed,
					Reason:     GeneralReason,
					Product:    product,
					Similarity: ev.Similarity,
					Message:    "Failed: General mismatch",
				}
			},
		)
	}

	// Historical items keep their relative order on equal timestamps.
	slices.SortStableFunc(working, func(a, b *TrackedItem) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	next := append(touched, working...)
	next, evicted := evict(next, len(touched), r.capacity)
	r.items = next

	res := Result{Created: created}
	for _, it := range touched {
		res.Touched = append(res.Touched, it.ID)
	}
	for _, it := range evicted {
		res.Evicted = append(res.Evicted, it.ID)
	}

	r.logger.Debug("verification event applied",
		"item_code", code,
		"batch", product.Batch,
		"success", ev.Success,
		"touched", len(touched),
		"created", created,
		"evicted", len(evicted),
	)
	return res, nil
}

// evict trims items to capacity, lowest priority first. Items touched by the
// current event (the first `touched` entries) are kept as long as possible,
// and event items go before seed placeholders.
func evict(items []*TrackedItem, touched, capacity int) ([]*TrackedItem, []*TrackedItem) {
	var evicted []*TrackedItem
	for len(items) > capacity {
		victim := len(items) - 1
		for i := len(items) - 1; i >= touched; i-- {
			if items[i].Origin == OriginEvent {
				victim = i
				break
			}
		}
		evicted = append(evicted, items[victim])
		items = slices.Delete(items, victim, victim+1)
	}
	return items, evicted
}

// overlay copies the non-empty fields of next over prev.
func overlay(prev, next Product) Product {
	out := prev
	if next.Name != "" {
		out.Name = next.Name
	}
	if next.Batch != "" {
		out.Batch = next.Batch
	}
	if !next.MRP.IsZero() {
		out.MRP = next.MRP
	}
	if next.Pack != "" {
		out.Pack = next.Pack
	}
	if next.Expiry != "" {
		out.Expiry = next.Expiry
	}
	if next.Quantity != 0 {
		out.Quantity = next.Quantity
	}
	if next.FreeQuantity != 0 {
		out.FreeQuantity = next.FreeQuantity
	}

	attrs := make(map[string]string, len(prev.Attributes)+len(next.Attributes))
	for k, v := range prev.Attributes {
		attrs[k] = v
	}
	for k, v := range next.Attributes {
		attrs[k] = v
	}
	out.Attributes = attrs
	return out
}

// ApplyPayload decodes and applies a raw event payload. A payload that does
// not decode is retained as the current error like any malformed event.
func (r *Reconciler) ApplyPayload(payload []byte) (Result, error) {
	ev, err := DecodeEvent(payload)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.version++
		snap := r.snapshotLocked()
		r.mu.Unlock()

		r.logger.Warn("verification event rejected", "error", err)
		r.publish(snap)
		return Result{}, err
	}
	return r.Apply(ev)
}

// HandlePayload is the handler registered on the event source. Errors are
// retained on the reconciler and surfaced through LastError.
func (r *Reconciler) HandlePayload(payload []byte) {
	_, _ = r.ApplyPayload(payload)
}

// Connect registers the event handler on the injected source and opens it.
func (r *Reconciler) Connect(ctx context.Context) error {
	if r.source == nil {
		return ErrNoSource
	}
	r.source.On(r.eventName, r.HandlePayload)
	if err := r.source.Connect(ctx); err != nil {
		return fmt.Errorf("connect event source: %w", err)
	}
	return nil
}

// Disconnect closes the injected source. State is kept.
func (r *Reconciler) Disconnect() error {
	if r.source == nil {
		return nil
	}
	return r.source.Disconnect()
}

// LastError returns the retained error, nil once dismissed.
func (r *Reconciler) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// DismissError clears the retained error.
func (r *Reconciler) DismissError() {
	r.mu.Lock()
	r.lastErr = nil
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.publish(snap)
}

// Alert returns the pending over-quantity alert, if any.
func (r *Reconciler) Alert() *OverQuantityAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.alert == nil {
		return nil
	}
	a := *r.alert
	return &a
}

// AcknowledgeAlert clears the pending over-quantity alert.
func (r *Reconciler) AcknowledgeAlert() {
	r.mu.Lock()
	r.alert = nil
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.publish(snap)
}

// Len returns the number of tracked items.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Items returns a copy of the tracked items in priority order.
func (r *Reconciler) Items() []TrackedItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyItems(r.items)
}

// Records returns the seed records.
func (r *Reconciler) Records() []core.CanonicalRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

// Snapshot returns a consistent copy of the full state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version: r.version,
		Items:   sortItems(copyItems(r.items), r.sort),
		Sort:    r.sort,
	}
	if r.alert != nil {
		a := *r.alert
		snap.Alert = &a
	}
	if r.lastErr != nil {
		snap.Error = r.lastErr.Error()
	}
	snap.Exceeded = make(map[string]bool)
	for code, rec := range r.byCode {
		if r.totalScannedLocked(code) > rec.Allowed() {
			snap.Exceeded[code] = true
		}
	}
	return snap
}

func copyItems(items []*TrackedItem) []TrackedItem {
	out := make([]TrackedItem, len(items))
	for i, it := range items {
		out[i] = *it
	}
	return out
}

// Subscribe returns a channel receiving a snapshot after every change. Slow
// subscribers only see the latest snapshot. Call the returned func to stop.
func (r *Reconciler) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	return ch, func() {
		r.subMu.Lock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
		r.subMu.Unlock()
	}
}

func (r *Reconciler) publish(snap Snapshot) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot and keep the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
