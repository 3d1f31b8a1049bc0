package store

import (
	"context"
	"testing"
	"time"

	"github.com/hyperengineering/fieldsync/internal/types"
)

func TestGetCheckpoint_NilBeforeFirstPull(t *testing.T) {
	s, _ := newTestStore(t)

	cp, err := s.GetCheckpoint(context.Background(), types.TableTips)
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if cp != nil {
		t.Errorf("checkpoint = %v, want nil", cp)
	}
}

func TestAdvanceCheckpoint_Monotonic(t *testing.T) {
	// Given: A checkpoint at t1
	s, _ := newTestStore(t)
	ctx := context.Background()
	t1 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	advanced, err := s.AdvanceCheckpoint(ctx, types.TableTips, t1)
	if err != nil || !advanced {
		t.Fatalf("first advance: advanced=%v err=%v", advanced, err)
	}

	// When: Advancing to an earlier or equal time
	for _, ts := range []time.Time{t1.Add(-time.Hour), t1} {
		advanced, err := s.AdvanceCheckpoint(ctx, types.TableTips, ts)
		if err != nil {
			t.Fatalf("AdvanceCheckpoint failed: %v", err)
		}
		// Then: The checkpoint does not move
		if advanced {
			t.Errorf("checkpoint moved to %v", ts)
		}
	}

	// When: Advancing to a later time
	t2 := t1.Add(time.Microsecond)
	advanced, err = s.AdvanceCheckpoint(ctx, types.TableTips, t2)
	if err != nil || !advanced {
		t.Fatalf("advance to later: advanced=%v err=%v", advanced, err)
	}

	// Then: The stored value is the later time
	cp, _ := s.GetCheckpoint(ctx, types.TableTips)
	if cp == nil || !cp.Equal(t2) {
		t.Errorf("checkpoint = %v, want %v", cp, t2)
	}
}

func TestCheckpoints_PerTable(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	if _, err := s.AdvanceCheckpoint(ctx, types.TableTips, ts); err != nil {
		t.Fatalf("AdvanceCheckpoint failed: %v", err)
	}

	cp, _ := s.GetCheckpoint(ctx, types.TableNotifications)
	if cp != nil {
		t.Errorf("notifications checkpoint = %v, want nil", cp)
	}

	list, err := s.ListCheckpoints(ctx)
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(list) != 1 || list[0].TableName != types.TableTips {
		t.Errorf("ListCheckpoints = %+v", list)
	}
}

func TestResetCheckpoint(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.AdvanceCheckpoint(ctx, types.TableTips, time.Now()); err != nil {
		t.Fatalf("AdvanceCheckpoint failed: %v", err)
	}

	if err := s.ResetCheckpoint(ctx, types.TableTips); err != nil {
		t.Fatalf("ResetCheckpoint failed: %v", err)
	}

	cp, _ := s.GetCheckpoint(ctx, types.TableTips)
	if cp != nil {
		t.Errorf("checkpoint = %v, want nil after reset", cp)
	}
}
