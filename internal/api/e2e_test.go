package api

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperengineering/fieldsync/internal/remote"
	"github.com/hyperengineering/fieldsync/internal/store"
	"github.com/hyperengineering/fieldsync/internal/types"
	"github.com/hyperengineering/fieldsync/internal/worker"
)

func newSyncer(s *store.SQLiteStore, svc remote.Service, userID string) *worker.Syncer {
	return worker.NewSyncer(
		worker.NewPushWorker(s, svc, worker.PushOptions{CallTimeout: 5 * time.Second}),
		worker.NewPullEngine(s, svc, worker.PullOptions{UserID: userID, CallTimeout: 5 * time.Second}),
	)
}

func TestEndToEnd_OfflineCaptureThenSync(t *testing.T) {
	captureLogs(t)
	ctx := context.Background()
	s, err := store.NewSQLiteStore(":memory:", store.WithDeviceID("device-e2e"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	// Given: A field worker captures data while the server is unreachable
	down := httptest.NewServer(nil)
	downURL := down.URL
	down.Close()

	u, err := s.CreateUser(ctx, types.User{Email: "grower@example.com", DisplayName: "Grower"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	sc, err := s.CreateScan(ctx, types.Scan{UserLocalID: u.LocalID, PlantName: "tomato"})
	if err != nil {
		t.Fatalf("CreateScan failed: %v", err)
	}
	dg, err := s.CreateDiagnosis(ctx, types.Diagnosis{ScanLocalID: sc.LocalID, DiseaseName: "early blight", Confidence: 0.87})
	if err != nil {
		t.Fatalf("CreateDiagnosis failed: %v", err)
	}

	offline := remote.NewHTTPClient(downURL, testAPIKey, time.Second)
	res, err := newSyncer(s, offline, u.LocalID).RunOnce(ctx)
	if err != nil {
		t.Fatalf("offline RunOnce failed: %v", err)
	}

	// Then: Every push failed, nothing was lost, and pulls reported errors
	if res.Push.Failed != 3 {
		t.Errorf("offline push = %+v", res.Push)
	}
	if res.Pull.Errors == 0 {
		t.Error("expected pull errors while offline")
	}
	stats, _ := s.OutboxStats(ctx, worker.DefaultMaxRetries)
	if stats.Pending != 3 {
		t.Errorf("pending = %d, want 3", stats.Pending)
	}

	// When: The server comes back with a notification for the user
	mem := remote.NewMemory()
	mem.Put(types.TableNotifications, types.Row{
		"id": "n1", "user_id": u.LocalID, "title": "Blight alert", "is_read": false,
		"updated_at": "2026-01-01T00:00:00Z",
	})
	srv := httptest.NewServer(NewRouter(NewHandler(mem, testAPIKey, "test", "memory")))
	defer srv.Close()
	online := newSyncer(s, remote.NewHTTPClient(srv.URL, testAPIKey, 5*time.Second), u.LocalID)

	res, err = online.RunOnce(ctx)
	if err != nil {
		t.Fatalf("online RunOnce failed: %v", err)
	}

	// Then: The capture is on the server and the notification on the device
	if res.Push.Succeeded != 3 {
		t.Errorf("online push = %+v", res.Push)
	}
	for table, id := range map[string]string{
		types.TableUsers:     u.LocalID,
		types.TableScans:     sc.LocalID,
		types.TableDiagnoses: dg.LocalID,
	} {
		if _, ok := mem.Get(table, id); !ok {
			t.Errorf("%s %s missing on server", table, id)
		}
	}
	row, _ := mem.Get(types.TableDiagnoses, dg.LocalID)
	if row.String("scan_id") != sc.LocalID {
		t.Errorf("diagnosis scan_id = %q, want %q", row.String("scan_id"), sc.LocalID)
	}
	n, err := s.GetNotification(ctx, "n1")
	if err != nil || n.Title != "Blight alert" || n.SyncStatus != types.SyncStatusSynced {
		t.Errorf("notification = %+v, err = %v", n, err)
	}

	// When: The user reads the notification and deletes the scan
	if _, err := s.MarkNotificationRead(ctx, "n1"); err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}
	if err := s.SoftDelete(ctx, types.TableScans, sc.LocalID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := online.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	// Then: The server sees the read flag and the tombstone
	if nrow, _ := mem.Get(types.TableNotifications, "n1"); nrow["is_read"] != true {
		t.Errorf("server notification = %v", nrow)
	}
	if srow, _ := mem.Get(types.TableScans, sc.LocalID); srow.String("deleted_at") == "" {
		t.Errorf("server scan not tombstoned: %v", srow)
	}
	stats, _ = s.OutboxStats(ctx, worker.DefaultMaxRetries)
	if stats.Pending != 0 {
		t.Errorf("pending = %d, want 0", stats.Pending)
	}
}
