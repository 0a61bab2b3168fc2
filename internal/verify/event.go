package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/JonMunkholm/verifier/internal/core"
)

// ErrMalformedEvent is returned for events without a matched product or
// without any recognized item code.
var ErrMalformedEvent = errors.New("malformed event")

// Event is a "product verified" message from the verification service.
type Event struct {
	MatchedProduct map[string]any `json:"matched_product"`
	Success        bool           `json:"success"`
	Similarity     float64        `json:"similarity"`
	Mismatches     map[string]any `json:"mismatches,omitempty"`
}

// DecodeEvent parses a JSON event payload.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: invalid data format received from server: %v", ErrMalformedEvent, err)
	}
	return ev, nil
}

// reasons returns the mismatch reasons in a stable order.
func (e Event) reasons() []string {
	reasons := make([]string, 0, len(e.Mismatches))
	for r := range e.Mismatches {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	return reasons
}

// NormalizeProduct resolves the aliases of a raw matched product once,
// producing the Product every later step reads.
func NormalizeProduct(raw map[string]any) (Product, error) {
	if raw == nil {
		return Product{}, fmt.Errorf("%w: invalid data format received from server", ErrMalformedEvent)
	}

	attrs := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := stringify(v); ok {
			attrs[k] = s
		}
	}

	code, ok := core.Resolve(attrs, core.FieldItem)
	if !ok {
		return Product{}, fmt.Errorf("%w: unknown product received - missing identification", ErrMalformedEvent)
	}

	get := func(field string) string {
		v, _ := core.Resolve(attrs, field)
		return v
	}

	return Product{
		ItemCode:     code,
		Name:         get(core.FieldName),
		Batch:        get(core.FieldBatch),
		MRP:          core.ParseDecimal(get(core.FieldMRP)),
		Pack:         get(core.FieldPack),
		Expiry:       get(core.FieldExpiry),
		Quantity:     core.ParseQuantity(get(core.FieldQuantity)),
		FreeQuantity: core.ParseQuantity(get(core.FieldFreeQuantity)),
		Attributes:   attrs,
	}, nil
}

// productFromRecord builds the product of a seed placeholder.
func productFromRecord(rec core.CanonicalRecord) Product {
	attrs := make(map[string]string, len(rec.Billing))
	for k, v := range rec.Billing {
		attrs[k] = v
	}
	return Product{
		ItemCode:     rec.ItemCode,
		Name:         rec.Name,
		Batch:        rec.Batch,
		MRP:          rec.MRP,
		Pack:         rec.Pack,
		Expiry:       rec.Expiry,
		Quantity:     rec.Quantity,
		FreeQuantity: rec.FreeQuantity,
		Attributes:   attrs,
	}
}

// stringify renders JSON scalars as text. Objects and arrays are re-encoded.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
