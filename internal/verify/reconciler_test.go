package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/verifier/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by one millisecond on every call so timestamps are
// strictly increasing.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestReconciler(opts ...Option) *Reconciler {
	seq := 0
	base := []Option{
		WithClock(newFakeClock().Now),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("seed-%d", seq)
		}),
	}
	return NewReconciler(append(base, opts...)...)
}

func record(code string, qty, free int) core.CanonicalRecord {
	return core.CanonicalRecord{ItemCode: code, Name: "Product " + code, Quantity: qty, FreeQuantity: free}
}

func success(code, batch string) Event {
	return Event{
		MatchedProduct: map[string]any{"item_code": code, "name": "Matched " + code, "batch": batch},
		Success:        true,
		Similarity:     0.93,
	}
}

func failure(code, batch string, mismatches map[string]any) Event {
	return Event{
		MatchedProduct: map[string]any{"code": code, "batch": batch},
		Success:        false,
		Similarity:     0.41,
		Mismatches:     mismatches,
	}
}

func countStatus(items []TrackedItem, status Status) int {
	n := 0
	for _, it := range items {
		if it.Status == status {
			n++
		}
	}
	return n
}

func TestSeed_OnePlaceholderPerRecord(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 5, 2), record("B2", 1, 0), record("C3", 0, 0)})

	items := r.Items()
	require.Len(t, items, 3)
	for _, it := range items {
		assert.Equal(t, StatusNotUploaded, it.Status)
		assert.Equal(t, OriginSeed, it.Origin)
		assert.Equal(t, 0, it.ScannedQuantity)
		assert.Equal(t, "Not Uploaded", it.Message)
		require.NotNil(t, it.Source)
	}
}

func TestSeed_ClearsPreviousState(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 0, 0)})

	_, err := r.Apply(success("A1", "X"))
	require.NoError(t, err)
	require.NotNil(t, r.Alert())
	r.RequestSort(core.FieldName)

	r.Seed([]core.CanonicalRecord{record("A1", 1, 0)})
	assert.Nil(t, r.Alert())
	assert.NoError(t, r.LastError())
	assert.Equal(t, DirectionNone, r.Sort().Direction)
	assert.Equal(t, 1, r.Len())
}

func TestApply_SuccessCreatesThenUpdates(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 5, 0)})

	res, err := r.Apply(success("A1", "X"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, []string{"A1_X_verified"}, res.Touched)

	res, err = r.Apply(success("A1", "X"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)

	items := r.Items()
	require.Len(t, items, 2)
	verified := items[0]
	assert.Equal(t, "A1_X_verified", verified.ID)
	assert.Equal(t, StatusVerified, verified.Status)
	assert.Equal(t, 2, verified.ScannedQuantity)
	assert.Equal(t, OriginEvent, verified.Origin)
	assert.Equal(t, "Verified", verified.Message)
	assert.Equal(t, "Matched A1", verified.Product.Name)
	assert.InDelta(t, 0.93, verified.Similarity, 1e-9)
	assert.Equal(t, 2, r.TotalScanned("A1"))
}

func TestApply_DifferentBatchesAreSeparateItems(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 5, 0)})

	_, err := r.Apply(success("A1", "X"))
	require.NoError(t, err)
	_, err = r.Apply(success("A1", "Y"))
	require.NoError(t, err)

	assert.Equal(t, 2, countStatus(r.Items(), StatusVerified))
	assert.Equal(t, 2, r.TotalScanned("A1"))
}

func TestApply_FailurePerReason(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 10, 0)})

	res, err := r.Apply(failure("A1", "X", map[string]any{
		"mrp":    "expected 10, got 12",
		"batch":  "expected X, got Z",
		"expiry": "expired",
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, []string{"A1_X_batch", "A1_X_expiry", "A1_X_mrp"}, res.Touched)

	items := r.Items()
	require.Len(t, items, 4)
	assert.Equal(t, 3, countStatus(items, StatusFailed))
	for _, it := range items[:3] {
		assert.Equal(t, fmt.Sprintf("Failed: %s mismatch", it.Reason), it.Message)
		assert.Len(t, it.Mismatches, 1)
		assert.Contains(t, it.Mismatches, it.Reason)
		assert.Equal(t, "failed:"+it.Reason, it.Outcome())
	}

	// Repeating one reason updates in place.
	res, err = r.Apply(failure("A1", "X", map[string]any{"mrp": "expected 10, got 13"}))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	items = r.Items()
	require.Len(t, items, 4)
	assert.Equal(t, "A1_X_mrp", items[0].ID)
	assert.Equal(t, 2, items[0].ScannedQuantity)
}

func TestApply_FailureWithoutMismatchesIsGeneral(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 3, 0)})

	_, err := r.Apply(failure("A1", "X", nil))
	require.NoError(t, err)

	items := r.Items()
	require.Len(t, items, 2)
	assert.Equal(t, GeneralReason, items[0].Reason)
	assert.Equal(t, "Failed: General mismatch", items[0].Message)
	assert.Equal(t, "A1_X_general", items[0].ID)
}

func TestApply_MalformedEventLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{"nil product", Event{Success: true}},
		{"no item code", Event{MatchedProduct: map[string]any{"name": "Paracetamol"}, Success: true}},
		{"empty item code", Event{MatchedProduct: map[string]any{"item": "  "}, Success: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReconciler()
			r.Seed([]core.CanonicalRecord{record("A1", 3, 0)})
			before := r.Items()

			_, err := r.Apply(tt.ev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedEvent))
			assert.Equal(t, before, r.Items())
			assert.ErrorIs(t, r.LastError(), ErrMalformedEvent)

			r.DismissError()
			assert.NoError(t, r.LastError())
		})
	}
}

func TestApply_QuantityCeiling(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 5, 2)})

	for i := 0; i < 7; i++ {
		res, err := r.Apply(success("A1", "batchX"))
		require.NoError(t, err)
		require.Nil(t, res.Alert, "event %d", i+1)
	}
	assert.Nil(t, r.Alert())
	assert.False(t, r.QuantityExceeded("A1"))

	verified := r.Items()[0]
	assert.Equal(t, 7, verified.ScannedQuantity)
	assert.Equal(t, 1, countStatus(r.Items(), StatusVerified))

	before := r.Items()
	res, err := r.Apply(success("A1", "batchX"))
	require.NoError(t, err)
	require.NotNil(t, res.Alert)
	assert.Equal(t, 7, res.Alert.Allowed)
	assert.Equal(t, 8, res.Alert.Scanned)
	assert.Equal(t, 5, res.Alert.Quantity)
	assert.Equal(t, 2, res.Alert.FreeQuantity)
	assert.Equal(t, "A1", res.Alert.Product.ItemCode)
	assert.Equal(t, before, r.Items())
	assert.Equal(t, 7, r.TotalScanned("A1"))

	require.NotNil(t, r.Alert())
	r.AcknowledgeAlert()
	assert.Nil(t, r.Alert())
}

func TestApply_CeilingCountsFailuresAndBatches(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 2, 0)})

	_, err := r.Apply(success("A1", "X"))
	require.NoError(t, err)
	_, err = r.Apply(failure("A1", "Y", map[string]any{"mrp": "off"}))
	require.NoError(t, err)

	res, err := r.Apply(success("A1", "Z"))
	require.NoError(t, err)
	require.NotNil(t, res.Alert)
	assert.Equal(t, 3, res.Alert.Scanned)
}

func TestApply_UnknownItemHasNoCeiling(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 1, 0)})

	for i := 0; i < 3; i++ {
		res, err := r.Apply(success("ZZ9", "X"))
		require.NoError(t, err)
		assert.Nil(t, res.Alert)
	}
	assert.False(t, r.QuantityExceeded("ZZ9"))
	_, ok := r.Allowed("ZZ9")
	assert.False(t, ok)

	allowed, ok := r.Allowed("A1")
	assert.True(t, ok)
	assert.Equal(t, 1, allowed)
}

func TestApply_CapPrefersEvictingEventItems(t *testing.T) {
	r := newTestReconciler(WithCapacity(5))
	r.Seed([]core.CanonicalRecord{record("S1", 9, 0), record("S2", 9, 0), record("S3", 9, 0)})

	for i := 0; i < 6; i++ {
		_, err := r.Apply(success(fmt.Sprintf("E%d", i), "X"))
		require.NoError(t, err)
		require.LessOrEqual(t, r.Len(), 5)
	}

	items := r.Items()
	require.Len(t, items, 5)
	assert.Equal(t, 3, countStatus(items, StatusNotUploaded), "seed placeholders survive")
	assert.Equal(t, "E5_X_verified", items[0].ID)
	assert.Equal(t, "E4_X_verified", items[1].ID)
}

func TestApply_CapEvictsOldestEventItem(t *testing.T) {
	r := newTestReconciler(WithCapacity(3))
	r.Seed(nil)

	var evicted []string
	for i := 0; i < 5; i++ {
		res, err := r.Apply(success(fmt.Sprintf("E%d", i), "X"))
		require.NoError(t, err)
		evicted = append(evicted, res.Evicted...)
	}

	assert.Equal(t, []string{"E0_X_verified", "E1_X_verified"}, evicted)
	ids := make([]string, 0, 3)
	for _, it := range r.Items() {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"E4_X_verified", "E3_X_verified", "E2_X_verified"}, ids)
}

func TestApply_CapNeverExceededAfterEvent(t *testing.T) {
	r := newTestReconciler()
	records := make([]core.CanonicalRecord, 0, 40)
	for i := 0; i < 40; i++ {
		records = append(records, record(fmt.Sprintf("R%d", i), 100, 0))
	}
	r.Seed(records)

	for i := 0; i < 120; i++ {
		code := fmt.Sprintf("R%d", i%40)
		_, err := r.Apply(failure(code, "B", map[string]any{"mrp": "x", "name": "y"}))
		require.NoError(t, err)
		require.LessOrEqual(t, r.Len(), DefaultCapacity)
	}
}

func TestApply_UpdateMovesItemToFront(t *testing.T) {
	r := newTestReconciler()
	r.Seed(nil)

	_, _ = r.Apply(success("A", "1"))
	_, _ = r.Apply(success("B", "1"))
	_, _ = r.Apply(success("A", "1"))

	items := r.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "A_1_verified", items[0].ID)
	assert.Equal(t, 2, items[0].ScannedQuantity)
	assert.Equal(t, "B_1_verified", items[1].ID)
}

func TestHandlePayload(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 2, 0)})

	r.HandlePayload([]byte(`{"matched_product":{"item":"A1","batch":"X","mrp":12.5},"success":true,"similarity":0.9}`))
	items := r.View()
	require.Len(t, items, 2)
	assert.Equal(t, StatusVerified, items[0].Status)
	assert.Equal(t, "12.5", items[0].Product.MRP.String())

	r.HandlePayload([]byte(`{not json`))
	assert.ErrorIs(t, r.LastError(), ErrMalformedEvent)
	assert.Len(t, r.View(), 2)
}

func TestReset(t *testing.T) {
	r := newTestReconciler()
	r.Seed([]core.CanonicalRecord{record("A1", 2, 0)})
	_, _ = r.Apply(success("A1", "X"))

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Records())
	_, ok := r.Allowed("A1")
	assert.False(t, ok)
}

func TestSubscribe_ReceivesLatestSnapshot(t *testing.T) {
	r := newTestReconciler()
	ch, cancel := r.Subscribe()
	defer cancel()

	r.Seed([]core.CanonicalRecord{record("A1", 2, 0)})
	_, _ = r.Apply(success("A1", "X"))

	select {
	case snap := <-ch:
		assert.Len(t, snap.Items, 2)
		assert.Equal(t, StatusVerified, snap.Items[0].Status)
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

type fakeSource struct {
	handlers     map[string]func([]byte)
	connected    bool
	disconnected bool
	err          error
}

func (f *fakeSource) On(event string, h func([]byte)) {
	if f.handlers == nil {
		f.handlers = make(map[string]func([]byte))
	}
	f.handlers[event] = h
}

func (f *fakeSource) Connect(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.connected = true
	return nil
}

func (f *fakeSource) Disconnect() error {
	f.disconnected = true
	return nil
}

func TestConnect_RegistersHandler(t *testing.T) {
	src := &fakeSource{}
	r := newTestReconciler(WithSource(src, ""))
	r.Seed([]core.CanonicalRecord{record("A1", 2, 0)})

	require.NoError(t, r.Connect(context.Background()))
	assert.True(t, src.connected)
	require.Contains(t, src.handlers, DefaultEventName)

	src.handlers[DefaultEventName]([]byte(`{"matched_product":{"code":"A1"},"success":true}`))
	assert.Equal(t, 1, r.TotalScanned("A1"))

	require.NoError(t, r.Disconnect())
	assert.True(t, src.disconnected)
	assert.Equal(t, 1, r.TotalScanned("A1"), "state survives disconnect")
}

func TestConnect_Errors(t *testing.T) {
	r := newTestReconciler()
	assert.ErrorIs(t, r.Connect(context.Background()), ErrNoSource)
	assert.NoError(t, r.Disconnect())

	boom := errors.New("dial refused")
	r = newTestReconciler(WithSource(&fakeSource{err: boom}, "custom"))
	assert.ErrorIs(t, r.Connect(context.Background()), boom)
}

func TestApplyPayload_RetainsDecodeError(t *testing.T) {
	r := newTestReconciler()
	before := r.Snapshot().Version

	_, err := r.ApplyPayload([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedEvent)
	assert.ErrorIs(t, r.LastError(), ErrMalformedEvent)
	assert.Greater(t, r.Snapshot().Version, before)

	res, err := r.ApplyPayload([]byte(`{"matched_product":{"item":"A1"},"success":true}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"A1__verified"}, res.Touched)
}
