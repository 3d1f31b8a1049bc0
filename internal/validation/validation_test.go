package validation

import (
	"strings"
	"testing"

	"github.com/hyperengineering/fieldsync/internal/schema"
	"github.com/hyperengineering/fieldsync/internal/types"
)

func mustTable(t *testing.T, name string) schema.Table {
	t.Helper()
	table, ok := schema.Lookup(name)
	if !ok {
		t.Fatalf("unknown table %s", name)
	}
	return table
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

// --- Field helper tests ---

func TestValidateUTF8(t *testing.T) {
	if err := ValidateUTF8("notes", "Hello, 世界"); err != nil {
		t.Errorf("ValidateUTF8(valid) = %v, want nil", err)
	}
	err := ValidateUTF8("notes", string([]byte{0xff, 0xfe}))
	if err == nil || err.Field != "notes" {
		t.Errorf("ValidateUTF8(invalid) = %v, want error on notes", err)
	}
}

func TestValidateNoNullBytes(t *testing.T) {
	if err := ValidateNoNullBytes("title", "clean"); err != nil {
		t.Errorf("ValidateNoNullBytes(clean) = %v, want nil", err)
	}
	if err := ValidateNoNullBytes("title", "a\x00b"); err == nil {
		t.Error("ValidateNoNullBytes(with null) = nil, want error")
	}
}

func TestValidateMaxLength_CountsRunes(t *testing.T) {
	if err := ValidateMaxLength("body", strings.Repeat("🌱", 10), 10); err != nil {
		t.Errorf("ValidateMaxLength(10 runes, max 10) = %v, want nil", err)
	}
	if err := ValidateMaxLength("body", strings.Repeat("🌱", 11), 10); err == nil {
		t.Error("ValidateMaxLength(11 runes, max 10) = nil, want error")
	}
}

func TestValidateRequired_WhitespaceOnly(t *testing.T) {
	for _, value := range []string{"", " ", "\t\n"} {
		if err := ValidateRequired("id", value); err == nil {
			t.Errorf("ValidateRequired(%q) = nil, want error", value)
		}
	}
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		value float64
		ok    bool
	}{
		{0, true},
		{0.5, true},
		{1, true},
		{-0.1, false},
		{1.1, false},
	}
	for _, tt := range tests {
		err := ValidateRange("confidence", tt.value, 0, 1)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateRange(%v) = %v, want ok=%v", tt.value, err, tt.ok)
		}
	}
}

func TestValidateTimestamp(t *testing.T) {
	valid := []any{nil, "", "2026-01-01T00:00:00Z", "2026-01-01T00:00:00.000123Z"}
	for _, v := range valid {
		if err := ValidateTimestamp("updated_at", v); err != nil {
			t.Errorf("ValidateTimestamp(%v) = %v, want nil", v, err)
		}
	}
	invalid := []any{"yesterday", 12.0, true}
	for _, v := range invalid {
		if err := ValidateTimestamp("updated_at", v); err == nil {
			t.Errorf("ValidateTimestamp(%v) = nil, want error", v)
		}
	}
}

func TestCollector_IgnoresNil(t *testing.T) {
	c := &Collector{}
	c.Add(nil)
	c.Add(&ValidationError{Field: "id", Message: "is required"})
	c.Add(nil)

	if !c.HasErrors() || len(c.Errors()) != 1 {
		t.Errorf("Errors() = %v, want exactly one", c.Errors())
	}
}

// --- Row tests ---

func TestValidateRow_ValidScan(t *testing.T) {
	// Given: A scan row as the push worker produces it
	row := types.Row{
		"id":          "01HZX",
		"device_id":   "dev-1",
		"version":     2.0,
		"created_at":  "2026-01-01T00:00:00Z",
		"updated_at":  "2026-01-01T00:00:01Z",
		"deleted_at":  nil,
		"user_id":     "u1",
		"plant_name":  "basil",
		"latitude":    45.5,
		"longitude":   nil,
		"captured_at": "2026-01-01T00:00:00Z",
	}

	// When: The row is validated
	errs := ValidateRow(mustTable(t, types.TableScans), row)

	// Then: It passes
	if len(errs) != 0 {
		t.Errorf("ValidateRow = %v, want no errors", errs)
	}
}

func TestValidateRow_RequiresIDAndUpdatedAt(t *testing.T) {
	errs := ValidateRow(mustTable(t, types.TableTips), types.Row{"title": "x"})

	if !hasField(errs, "id") || !hasField(errs, "updated_at") {
		t.Errorf("ValidateRow = %v, want id and updated_at errors", errs)
	}
}

func TestValidateRow_RejectsUnknownAndMistypedFields(t *testing.T) {
	row := types.Row{
		"id":            "t1",
		"updated_at":    "2026-01-01T00:00:00Z",
		"is_bookmarked": "yes",
		"title":         42.0,
		"sync_status":   "synced",
	}

	errs := ValidateRow(mustTable(t, types.TableTips), row)

	for _, field := range []string{"is_bookmarked", "title", "sync_status"} {
		if !hasField(errs, field) {
			t.Errorf("expected error on %s, got %v", field, errs)
		}
	}
}

func TestValidateRow_EnforcesRanges(t *testing.T) {
	row := types.Row{
		"id":         "d1",
		"updated_at": "2026-01-01T00:00:00Z",
		"scan_id":    "s1",
		"confidence": 1.5,
	}

	errs := ValidateRow(mustTable(t, types.TableDiagnoses), row)

	if !hasField(errs, "confidence") {
		t.Errorf("expected confidence range error, got %v", errs)
	}
}

func TestValidatePatch(t *testing.T) {
	table := mustTable(t, types.TableScans)

	if errs := ValidatePatch(table, types.Row{}); !hasField(errs, "body") {
		t.Errorf("empty patch errors = %v, want body error", errs)
	}
	if errs := ValidatePatch(table, types.Row{"id": "other"}); !hasField(errs, "id") {
		t.Errorf("id patch errors = %v, want id error", errs)
	}
	tombstone := types.Row{
		"deleted_at": "2026-01-02T00:00:00Z",
		"updated_at": "2026-01-02T00:00:00Z",
		"version":    3.0,
		"device_id":  "dev-1",
	}
	if errs := ValidatePatch(table, tombstone); len(errs) != 0 {
		t.Errorf("tombstone patch errors = %v, want none", errs)
	}
}

func TestValidateFilter(t *testing.T) {
	table := mustTable(t, types.TableNotifications)

	if errs := ValidateFilter(table, "user_id", "u1"); len(errs) != 0 {
		t.Errorf("ValidateFilter(user_id) = %v, want none", errs)
	}
	if errs := ValidateFilter(table, "user_local_id", "u1"); !hasField(errs, "column") {
		t.Errorf("ValidateFilter(local name) = %v, want column error", errs)
	}
	if errs := ValidateFilter(table, "id", ""); !hasField(errs, "value") {
		t.Errorf("ValidateFilter(empty value) = %v, want value error", errs)
	}
}
