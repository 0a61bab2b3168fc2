package core

import (
	"errors"
	"testing"
)

func TestFieldMapping_Validate(t *testing.T) {
	headers := []string{"Code", "Item Name", "Batch No", "Qty"}

	tests := []struct {
		name    string
		mapping FieldMapping
		wantErr error
	}{
		{
			name:    "valid",
			mapping: FieldMapping{FieldItem: "code", FieldName: "Item Name", FieldQuantity: "Qty"},
		},
		{
			name:    "missing required",
			mapping: FieldMapping{FieldItem: "Code"},
			wantErr: ErrMissingMapping,
		},
		{
			name:    "unknown field",
			mapping: FieldMapping{FieldItem: "Code", FieldName: "Item Name", "colour": "Qty"},
			wantErr: ErrInvalidMapping,
		},
		{
			name:    "column not in upload",
			mapping: FieldMapping{FieldItem: "Code", FieldName: "Description"},
			wantErr: ErrInvalidMapping,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate(headers)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFieldMapping_PersistedRoundTrip(t *testing.T) {
	m := FieldMapping{FieldItem: "Code", FieldName: "Desc", FieldFreeQuantity: "Free"}

	persisted := m.Persisted()
	if persisted["Code"] != "Code" || persisted["Name"] != "Desc" || persisted["Fquantity"] != "Free" {
		t.Errorf("Persisted() = %v", persisted)
	}
	if v, ok := persisted["Batch"]; !ok || v != "" {
		t.Errorf("Persisted()[Batch] = %q, %v; want empty present", v, ok)
	}

	back := MappingFromPersisted(persisted)
	if len(back) != 3 || back[FieldFreeQuantity] != "Free" {
		t.Errorf("MappingFromPersisted() = %v, want original three fields", back)
	}
}

func TestSuggestMapping(t *testing.T) {
	got := SuggestMapping([]string{"ITEM_CODE", "Name", "Mrp", "EXPIRY", "Other"})

	want := FieldMapping{FieldItem: "ITEM_CODE", FieldName: "Name", FieldMRP: "Mrp", FieldExpiry: "EXPIRY"}
	if len(got) != len(want) {
		t.Fatalf("SuggestMapping() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("SuggestMapping()[%s] = %q, want %q", k, got[k], v)
		}
	}
}
