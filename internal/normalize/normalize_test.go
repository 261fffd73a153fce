package normalize

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type queueModel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LocationID  string `json:"locationId"`
	Extension   string `json:"extension,omitempty"`
	internalTag string
}

type wrappedLicense struct {
	sku   string
	usage int
}

func (w wrappedLicense) ToRow() Row {
	return Row{"sku": w.sku, "usage": w.usage}
}

func TestNormalizeStructUsesJSONTagsAndSkipsEmpties(t *testing.T) {
	row := Normalize(queueModel{ID: "q1", Name: "Support", LocationID: "", Extension: "4001", internalTag: "x"})
	want := Row{"id": "q1", "name": "Support", "extension": "4001"}
	if diff := cmp.Diff(want, row); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeMapPassthrough(t *testing.T) {
	in := Row{"id": "p1", "emails": []any{"a@example.com"}}
	row := Normalize(in)
	if diff := cmp.Diff(in, row); diff != "" {
		t.Fatalf("map passthrough mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeNormalizable(t *testing.T) {
	row := Normalize(wrappedLicense{sku: "calling-pro", usage: 7})
	if row["sku"] != "calling-pro" || row["usage"] != 7 {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestNormalizeScalarFallback(t *testing.T) {
	row := Normalize(42)
	if row["value"] != "42" {
		t.Fatalf("expected fallback value wrap, got %v", row)
	}
}

func TestMaterializeRowsSingletonIsOneRow(t *testing.T) {
	rows := MaterializeRows(queueModel{ID: "q1", Name: "Support"})
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row for a singleton, got %d", len(rows))
	}
	if rows[0]["id"] != "q1" {
		t.Fatalf("singleton row lost identity: %v", rows[0])
	}
}

func TestMaterializeRowsSliceFansOut(t *testing.T) {
	rows := MaterializeRows([]queueModel{{ID: "q1"}, {ID: "q2"}, {ID: "q3"}})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[2]["id"] != "q3" {
		t.Fatalf("slice order not preserved: %v", rows)
	}
}

func TestMaterializeRowsNil(t *testing.T) {
	if rows := MaterializeRows(nil); rows != nil {
		t.Fatalf("expected nil rows, got %v", rows)
	}
}

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"blank", "   ", true},
		{"none token", "None", true},
		{"null token", "null", true},
		{"nan token", "NaN", true},
		{"na token", "n/a", true},
		{"real string", "L1", false},
		{"empty slice", []any{}, true},
		{"slice of empties", []any{"", nil, "null"}, true},
		{"slice with value", []any{"", "x"}, false},
		{"empty map", map[string]any{}, true},
		{"map of empties", map[string]any{"a": ""}, true},
		{"zero int", 0, false},
		{"nil pointer", (*queueModel)(nil), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsEmpty(tc.in); got != tc.want {
				t.Fatalf("IsEmpty(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
