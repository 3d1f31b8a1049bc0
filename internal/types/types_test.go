package types

import (
	"strings"
	"testing"
	"time"
)

func TestFormatTime_FixedWidthUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, loc)

	got := FormatTime(ts)

	if got != "2025-03-01T10:00:00.000000Z" {
		t.Errorf("FormatTime = %q, want 2025-03-01T10:00:00.000000Z", got)
	}
}

func TestFormatTime_LexicalOrderMatchesChronological(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := FormatTime(base.Add(90 * time.Millisecond))
	b := FormatTime(base.Add(100 * time.Millisecond))
	c := FormatTime(base.Add(time.Second))

	if !(a < b && b < c) {
		t.Errorf("lexical order broken: %q %q %q", a, b, c)
	}
}

func TestParseTime_AcceptsRFC3339Variants(t *testing.T) {
	tests := []string{
		"2025-03-01T10:00:00.000000Z",
		"2025-03-01T10:00:00Z",
		"2025-03-01T12:00:00+02:00",
		"2025-03-01T10:00:00.0Z",
	}
	want := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, in := range tests {
		got, err := ParseTime(in)
		if err != nil {
			t.Errorf("ParseTime(%q) error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseTime_RejectsGarbage(t *testing.T) {
	_, err := ParseTime("yesterday")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "yesterday") {
		t.Errorf("error %q should mention the input", err)
	}
}

func TestRecord_Accessors(t *testing.T) {
	r := Record{
		"s":    "text",
		"i":    int64(7),
		"f":    3.5,
		"b":    int64(1),
		"bb":   true,
		"t":    "2025-03-01T10:00:00.000000Z",
		"null": nil,
	}

	if r.String("s") != "text" {
		t.Errorf("String = %q", r.String("s"))
	}
	if r.Int("i") != 7 {
		t.Errorf("Int = %d", r.Int("i"))
	}
	if r.Float("f") != 3.5 {
		t.Errorf("Float = %v", r.Float("f"))
	}
	if !r.Bool("b") || !r.Bool("bb") {
		t.Error("Bool should be true for 1 and true")
	}
	if r.Time("t").IsZero() {
		t.Error("Time should parse")
	}
	if r.TimePtr("null") != nil || r.StringPtr("null") != nil || r.FloatPtr("null") != nil {
		t.Error("pointer accessors should return nil for NULL")
	}
	if r.String("missing") != "" {
		t.Error("missing column should read as empty string")
	}
}

func TestNotification_RecordRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	readAt := now.Add(time.Minute)
	serverID := "srv-1"
	n := Notification{
		Envelope: Envelope{
			LocalID:    "n-1",
			ServerID:   &serverID,
			SyncStatus: SyncStatusSynced,
			CreatedAt:  now,
			UpdatedAt:  now,
			DeviceID:   "dev-1",
			Version:    3,
		},
		UserLocalID: "u-1",
		Title:       "Frost warning",
		Body:        "Cover seedlings tonight",
		Kind:        "alert",
		IsRead:      true,
		ReadAt:      &readAt,
	}

	got := NotificationFromRecord(n.Record())

	if got.LocalID != "n-1" || got.ServerID == nil || *got.ServerID != "srv-1" {
		t.Errorf("envelope ids not preserved: %+v", got.Envelope)
	}
	if got.Version != 3 || got.SyncStatus != SyncStatusSynced {
		t.Errorf("envelope state not preserved: %+v", got.Envelope)
	}
	if !got.IsRead || got.ReadAt == nil || !got.ReadAt.Equal(readAt) {
		t.Errorf("read state not preserved: %+v", got)
	}
	if got.DeletedAt != nil {
		t.Error("DeletedAt should stay nil")
	}
}

func TestOperationAndStatus_Valid(t *testing.T) {
	if !OperationDelete.Valid() || Operation("upsert").Valid() {
		t.Error("Operation.Valid mismatch")
	}
	if !SyncStatusFailed.Valid() || SyncStatus("done").Valid() {
		t.Error("SyncStatus.Valid mismatch")
	}
}
