package download_test

import (
	"context"
	"testing"
	"time"

	"seedkeeper/internal/download"
	"seedkeeper/internal/testsupport"
)

func queueAcquisition(t *testing.T, store *download.Store, title string, releaseType download.ReleaseType) *download.Acquisition {
	t.Helper()
	return testsupport.NewAcquisition(t, store, download.NewAcquisitionParams{
		Title:       title,
		Author:      "Author",
		ReleaseType: releaseType,
	})
}

func TestNewAcquisitionDefaults(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	item := queueAcquisition(t, store, "The Martian", download.ReleaseStandardPaid)

	if item.Status != download.StatusQueued {
		t.Fatalf("expected queued status, got %s", item.Status)
	}
	if item.UUID == "" {
		t.Fatal("expected generated uuid")
	}
	if item.IntegrityStatus != download.IntegrityPending {
		t.Fatalf("expected pending integrity, got %s", item.IntegrityStatus)
	}
}

func TestTransitionStatusConditional(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := queueAcquisition(t, store, "Project Hail Mary", download.ReleaseFree)

	moved, err := store.TransitionStatus(ctx, item.ID, download.StatusQueued, download.StatusDownloading)
	if err != nil || !moved {
		t.Fatalf("queued->downloading: moved=%v err=%v", moved, err)
	}

	// Replay of the same transition must be a no-op.
	moved, err = store.TransitionStatus(ctx, item.ID, download.StatusQueued, download.StatusDownloading)
	if err != nil {
		t.Fatalf("replay transition: %v", err)
	}
	if moved {
		t.Fatal("replayed transition should not match any row")
	}

	// Illegal transitions are rejected before touching the database.
	if _, err := store.TransitionStatus(ctx, item.ID, download.StatusDownloading, download.StatusSettled); err == nil {
		t.Fatal("expected error for illegal transition")
	}
}

func TestBlockPaidAcquisitions(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	paid := queueAcquisition(t, store, "Paid Book", download.ReleaseStandardPaid)
	free := queueAcquisition(t, store, "Free Book", download.ReleaseFreeNoRatio)
	active := queueAcquisition(t, store, "Active Book", download.ReleasePremiumPaid)
	if _, err := store.TransitionStatus(ctx, active.ID, download.StatusQueued, download.StatusDownloading); err != nil {
		t.Fatalf("activate: %v", err)
	}

	affected, err := store.BlockPaidAcquisitions(ctx)
	if err != nil {
		t.Fatalf("BlockPaidAcquisitions: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected 2 affected rows, got %d", affected)
	}

	got, _ := store.GetByID(ctx, paid.ID)
	if got.Status != download.StatusBlocked || !got.Blocked {
		t.Fatalf("paid queued item should be blocked, got %+v", got)
	}
	got, _ = store.GetByID(ctx, free.ID)
	if got.Status != download.StatusQueued || got.Blocked {
		t.Fatalf("free item must not be touched, got %+v", got)
	}
	got, _ = store.GetByID(ctx, active.ID)
	if got.Status != download.StatusDownloading || !got.Blocked {
		t.Fatalf("active paid item should keep status but carry flag, got %+v", got)
	}

	restored, err := store.UnblockAcquisitions(ctx)
	if err != nil {
		t.Fatalf("UnblockAcquisitions: %v", err)
	}
	if restored == 0 {
		t.Fatal("expected unblock to touch rows")
	}
	got, _ = store.GetByID(ctx, paid.ID)
	if got.Status != download.StatusQueued || got.Blocked {
		t.Fatalf("blocked item should return to queued, got %+v", got)
	}
	got, _ = store.GetByID(ctx, active.ID)
	if got.Blocked {
		t.Fatalf("active item should lose the flag, got %+v", got)
	}
}

func TestSetEmergencyActiveIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	changed, err := store.SetEmergencyActive(ctx, true, 0.97)
	if err != nil || !changed {
		t.Fatalf("first activation: changed=%v err=%v", changed, err)
	}
	changed, err = store.SetEmergencyActive(ctx, true, 0.95)
	if err != nil {
		t.Fatalf("second activation: %v", err)
	}
	if changed {
		t.Fatal("second activation should be a no-op")
	}

	state, err := store.EmergencyState(ctx)
	if err != nil {
		t.Fatalf("EmergencyState: %v", err)
	}
	if !state.Active || state.LastRatio != 0.97 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.TriggeredAt == nil {
		t.Fatal("expected triggered_at to be set")
	}

	changed, err = store.SetEmergencyActive(ctx, false, 1.06)
	if err != nil || !changed {
		t.Fatalf("deactivation: changed=%v err=%v", changed, err)
	}
	state, _ = store.EmergencyState(ctx)
	if state.Active {
		t.Fatal("expected emergency cleared")
	}
}

func TestRatioSnapshotTrail(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-2 * time.Hour)
	for i, ratio := range []float64{1.20, 1.10, 0.97} {
		err := store.AppendRatioSnapshot(ctx, download.RatioSnapshot{
			TakenAt:         base.Add(time.Duration(i) * time.Hour),
			Ratio:           ratio,
			EmergencyActive: ratio < 1.0,
		})
		if err != nil {
			t.Fatalf("append snapshot: %v", err)
		}
	}

	snapshots, err := store.RatioSnapshotsSince(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("RatioSnapshotsSince: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].Ratio != 1.10 || snapshots[1].Ratio != 0.97 {
		t.Fatalf("unexpected ordering: %+v", snapshots)
	}
	if !snapshots[1].EmergencyActive {
		t.Fatal("expected emergency flag on sub-floor snapshot")
	}

	pruned, err := store.PruneRatioSnapshots(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("PruneRatioSnapshots: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}
}

func TestAuditTrail(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	record, err := store.AppendAudit(ctx, "emergency_toggle", map[string]any{"active": true, "ratio": 0.97})
	if err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if record.UUID == "" {
		t.Fatal("expected audit uuid")
	}

	records, err := store.ListAudit(ctx, "emergency_toggle", 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	count, err := store.AuditCountSince(ctx, "emergency_toggle", time.Now().UTC().Add(-time.Minute))
	if err != nil || count != 1 {
		t.Fatalf("AuditCountSince: count=%d err=%v", count, err)
	}
}

func TestWishlistPromotion(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	entry, err := store.AddWishlistEntry(ctx, "Dune", "Frank Herbert", "")
	if err != nil {
		t.Fatalf("AddWishlistEntry: %v", err)
	}

	pending, err := store.PendingWishlist(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("PendingWishlist: %v (%d entries)", err, len(pending))
	}

	promoted, err := store.MarkWishlistPromoted(ctx, entry.ID)
	if err != nil || !promoted {
		t.Fatalf("MarkWishlistPromoted: promoted=%v err=%v", promoted, err)
	}
	promoted, err = store.MarkWishlistPromoted(ctx, entry.ID)
	if err != nil {
		t.Fatalf("second promotion: %v", err)
	}
	if promoted {
		t.Fatal("second promotion should be a no-op")
	}
}

func TestFindAcceptedByWork(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := queueAcquisition(t, store, "Same Work", download.ReleaseFree)

	found, err := store.FindAcceptedByWork(ctx, "Same Work", "Author")
	if err != nil {
		t.Fatalf("FindAcceptedByWork: %v", err)
	}
	if found == nil || found.ID != first.ID {
		t.Fatalf("expected to find acquisition %d, got %+v", first.ID, found)
	}

	// Abandoned acquisitions are not duplicates.
	if _, err := store.TransitionStatus(ctx, first.ID, download.StatusQueued, download.StatusAbandoned); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	found, err = store.FindAcceptedByWork(ctx, "Same Work", "Author")
	if err != nil {
		t.Fatalf("FindAcceptedByWork: %v", err)
	}
	if found != nil {
		t.Fatalf("abandoned item should not match, got %+v", found)
	}
}
