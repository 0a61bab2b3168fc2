package verify

import (
	"slices"
	"strings"

	"github.com/JonMunkholm/verifier/internal/core"
)

// Direction is the state of the three-way sort toggle.
type Direction string

const (
	DirectionNone       Direction = "none"
	DirectionAscending  Direction = "ascending"
	DirectionDescending Direction = "descending"
)

// Sort keys beyond the canonical field names.
const (
	KeySimilarity      = "similarity"
	KeyScannedQuantity = "scanned_quantity"
	KeyTimestamp       = "timestamp"
	KeyStatus          = "status"
	KeyMessage         = "message"
)

// SortState is the explicit sort selection. Key is empty when the default
// order applies.
type SortState struct {
	Key       string    `json:"key,omitempty"`
	Direction Direction `json:"direction"`
}

// next returns the state after a toggle request for key.
func (s SortState) next(key string) SortState {
	if !strings.EqualFold(s.Key, key) || s.Direction == DirectionNone {
		return SortState{Key: key, Direction: DirectionAscending}
	}
	if s.Direction == DirectionAscending {
		return SortState{Key: key, Direction: DirectionDescending}
	}
	return SortState{Direction: DirectionNone}
}

func isNumericKey(key string) bool {
	switch strings.ToLower(key) {
	case KeySimilarity, core.FieldMRP, core.FieldQuantity, core.FieldFreeQuantity, "free_quantity", KeyScannedQuantity, "scannedquantity":
		return true
	}
	return false
}

// numeric returns the numeric value of key for it; missing values are 0.
func numeric(it TrackedItem, key string) float64 {
	switch strings.ToLower(key) {
	case KeySimilarity:
		return it.Similarity
	case core.FieldMRP:
		f, _ := it.Product.MRP.Float64()
		return f
	case core.FieldQuantity:
		return float64(it.Quantity())
	case core.FieldFreeQuantity, "free_quantity":
		return float64(it.FreeQuantity())
	case KeyScannedQuantity, "scannedquantity":
		return float64(it.ScannedQuantity)
	}
	return 0
}

// text returns the display value of key for it. Keys match the canonical
// field names and the view's JSON names, case-insensitively.
func text(it TrackedItem, key string) string {
	switch strings.ToLower(key) {
	case core.FieldItem, "item_code", "itemcode", "code":
		return it.ItemCode()
	case core.FieldName:
		return it.Product.Name
	case core.FieldBatch:
		return it.Product.Batch
	case core.FieldPack:
		return it.Product.Pack
	case "expiry":
		return it.Product.Expiry
	case KeyStatus, "outcome":
		return it.Outcome()
	case KeyMessage:
		return it.Message
	case "origin":
		return string(it.Origin)
	}
	if v, ok := it.Product.Attributes[key]; ok {
		return v
	}
	if it.Source != nil {
		return it.Source.Billing[key]
	}
	return ""
}

// compareBy returns a three-way comparator for key, ascending.
func compareBy(key string) func(a, b TrackedItem) int {
	switch {
	case strings.EqualFold(key, KeyTimestamp):
		return func(a, b TrackedItem) int { return a.Timestamp.Compare(b.Timestamp) }
	case isNumericKey(key):
		return func(a, b TrackedItem) int {
			x, y := numeric(a, key), numeric(b, key)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	default:
		return func(a, b TrackedItem) int { return strings.Compare(text(a, key), text(b, key)) }
	}
}

// defaultOrder puts every uploaded item before every not_uploaded item,
// newest first within each group.
func defaultOrder(a, b TrackedItem) int {
	ap, bp := a.Status == StatusNotUploaded, b.Status == StatusNotUploaded
	if ap != bp {
		if ap {
			return 1
		}
		return -1
	}
	return b.Timestamp.Compare(a.Timestamp)
}

// sortItems orders items for display. Ties keep their relative order.
func sortItems(items []TrackedItem, s SortState) []TrackedItem {
	if s.Key == "" || s.Direction == DirectionNone {
		slices.SortStableFunc(items, defaultOrder)
		return items
	}

	cmp := compareBy(s.Key)
	if s.Direction == DirectionDescending {
		asc := cmp
		cmp = func(a, b TrackedItem) int { return asc(b, a) }
	}
	slices.SortStableFunc(items, cmp)
	return items
}

// View returns the tracked items in the current sort order.
func (r *Reconciler) View() []TrackedItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortItems(copyItems(r.items), r.sort)
}

// RequestSort toggles the sort on key: ascending, descending, then back to
// the default order.
func (r *Reconciler) RequestSort(key string) SortState {
	r.mu.Lock()
	r.sort = r.sort.next(key)
	state := r.sort
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(snap)
	return state
}

// Sort returns the current sort selection.
func (r *Reconciler) Sort() SortState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sort
}

// TotalScanned sums the scanned quantity of every event item for itemCode.
func (r *Reconciler) TotalScanned(itemCode string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalScannedLocked(itemCode)
}

func (r *Reconciler) totalScannedLocked(itemCode string) int {
	total := 0
	for _, it := range r.items {
		if it.Origin == OriginEvent && it.ItemCode() == itemCode {
			total += it.ScannedQuantity
		}
	}
	return total
}

// Allowed returns the scan ceiling for itemCode. ok is false when the CSV
// had no record for it.
func (r *Reconciler) Allowed(itemCode string) (allowed int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byCode[itemCode]
	if !ok {
		return 0, false
	}
	return rec.Allowed(), true
}

// QuantityExceeded reports whether the scanned total for itemCode is past
// its ceiling. Item codes without a record are never exceeded.
func (r *Reconciler) QuantityExceeded(itemCode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byCode[itemCode]
	if !ok {
		return false
	}
	return r.totalScannedLocked(itemCode) > rec.Allowed()
}
