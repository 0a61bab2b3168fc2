package verify

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/verifier/internal/core"
	"github.com/shopspring/decimal"
)

// DefaultCapacity is the maximum number of tracked items retained.
const DefaultCapacity = 50

// GeneralReason is the failure reason used when an event carries no mismatches.
const GeneralReason = "general"

// Status is the verification state of a tracked item.
type Status string

const (
	StatusNotUploaded Status = "not_uploaded"
	StatusVerified    Status = "verified"
	StatusFailed      Status = "failed"
)

// Origin records where a tracked item came from.
type Origin string

const (
	OriginSeed  Origin = "seed"
	OriginEvent Origin = "event"
)

// Product is the normalized product carried by a tracked item. Aliases are
// resolved once, when the item is created from a record or an event.
type Product struct {
	ItemCode     string
	Name         string
	Batch        string
	MRP          decimal.Decimal
	Pack         string
	Expiry       string
	Quantity     int
	FreeQuantity int

	// Attributes holds every scalar attribute of the source, stringified,
	// under its original key.
	Attributes map[string]string
}

// TrackedItem is one entry of the live verification view.
type TrackedItem struct {
	ID string

	// Source is the seed record for the item code, nil when the CSV had none.
	Source *core.CanonicalRecord

	Status          Status
	Reason          string
	Product         Product
	ScannedQuantity int
	Similarity      float64
	Message         string
	Mismatches      map[string]any
	Timestamp       time.Time
	Origin          Origin
}

// Outcome returns not_uploaded, verified or failed:<reason>.
func (t TrackedItem) Outcome() string {
	if t.Status == StatusFailed && t.Reason != "" {
		return string(StatusFailed) + ":" + t.Reason
	}
	return string(t.Status)
}

// ItemCode returns the item code from the product or the seed record.
func (t TrackedItem) ItemCode() string {
	if t.Product.ItemCode != "" {
		return t.Product.ItemCode
	}
	if t.Source != nil {
		return t.Source.ItemCode
	}
	return ""
}

// Quantity is the allowed quantity from the seed record.
func (t TrackedItem) Quantity() int {
	if t.Source != nil {
		return t.Source.Quantity
	}
	return t.Product.Quantity
}

// FreeQuantity is the allowed free quantity from the seed record.
func (t TrackedItem) FreeQuantity() int {
	if t.Source != nil {
		return t.Source.FreeQuantity
	}
	return t.Product.FreeQuantity
}

func (t TrackedItem) key() mergeKey {
	return mergeKey{itemCode: t.ItemCode(), batch: t.Product.Batch, status: t.Status, reason: t.Reason}
}

// mergeKey decides whether an event updates an existing item or creates one.
// Successes use (code, batch, verified); failures (code, batch, failed, reason).
type mergeKey struct {
	itemCode string
	batch    string
	status   Status
	reason   string
}

func (k mergeKey) id() string {
	suffix := string(k.status)
	if k.status == StatusFailed {
		suffix = k.reason
	}
	return fmt.Sprintf("%s_%s_%s", k.itemCode, k.batch, suffix)
}

// OverQuantityAlert is raised when a scan would push the total scanned
// quantity for an item code past its allowed quantity. The scan is withheld.
type OverQuantityAlert struct {
	Product      Product
	Quantity     int
	FreeQuantity int
	Allowed      int
	Scanned      int // total including the withheld scan
	RaisedAt     time.Time
}

// Result describes the effect of one applied event.
type Result struct {
	Touched []string // ids updated or created, in priority order
	Created int
	Evicted []string
	Alert   *OverQuantityAlert
}

// Snapshot is a consistent copy of the reconciler state.
type Snapshot struct {
	Version uint64
	Items   []TrackedItem // in view order
	Sort    SortState
	Alert   *OverQuantityAlert
	Error   string

	// Exceeded holds the item codes whose scanned total is past the ceiling.
	Exceeded map[string]bool
}
