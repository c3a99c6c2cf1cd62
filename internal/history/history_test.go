package history

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// newTestDB creates an in-memory SQLite database for testing
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := InitDB(Config{
		DatabasePath: ":memory:",
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return db
}

func createTestDownload(bundleID, status string, at time.Time) *Download {
	return &Download{
		AttemptID:    "3f1f0e9e-0000-0000-0000-000000000001",
		BundleID:     bundleID,
		Name:         "Example App",
		Version:      "2.0",
		Path:         "/downloads/Example App 2.0.ipa",
		SizeBytes:    104857600,
		Status:       status,
		DownloadedAt: at,
		DurationMS:   4200,
	}
}

func TestRecordDownload(t *testing.T) {
	db := newTestDB(t)

	if err := db.RecordDownload(nil); !errors.Is(err, ErrNilDownload) {
		t.Errorf("nil download: got %v, want ErrNilDownload", err)
	}
	if err := db.RecordDownload(&Download{Status: StatusFailed}); !errors.Is(err, ErrEmptyBundleID) {
		t.Errorf("empty bundle id: got %v, want ErrEmptyBundleID", err)
	}

	d := createTestDownload("com.example.app", StatusSucceeded, time.Now())
	if err := db.RecordDownload(d); err != nil {
		t.Fatalf("RecordDownload: %v", err)
	}
	if d.ID == 0 {
		t.Error("expected an assigned ID")
	}
}

func TestListByBundleAndStatus(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	seed := []*Download{
		createTestDownload("com.example.app", StatusSucceeded, now.Add(-2*time.Hour)),
		createTestDownload("com.example.app", StatusFailed, now.Add(-1*time.Hour)),
		createTestDownload("com.other.app", StatusSucceeded, now),
	}
	for _, d := range seed {
		if err := db.RecordDownload(d); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, err := db.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAll returned %d rows, want 3", len(all))
	}
	if all[0].BundleID != "com.other.app" {
		t.Errorf("expected newest first, got %s", all[0].BundleID)
	}

	byBundle, err := db.ListByBundle("com.example.app")
	if err != nil {
		t.Fatalf("ListByBundle: %v", err)
	}
	if len(byBundle) != 2 {
		t.Errorf("ListByBundle returned %d rows, want 2", len(byBundle))
	}

	failed, err := db.ListByStatus(StatusFailed)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(failed) != 1 {
		t.Errorf("ListByStatus returned %d rows, want 1", len(failed))
	}
}

func TestLastSuccessful(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	if _, err := db.LastSuccessful("com.example.app"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty table: got %v, want ErrNotFound", err)
	}

	older := createTestDownload("com.example.app", StatusSucceeded, now.Add(-time.Hour))
	older.Version = "1.9"
	newer := createTestDownload("com.example.app", StatusSucceeded, now)
	failed := createTestDownload("com.example.app", StatusFailed, now.Add(time.Minute))
	for _, d := range []*Download{older, newer, failed} {
		if err := db.RecordDownload(d); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := db.LastSuccessful("com.example.app")
	if err != nil {
		t.Fatalf("LastSuccessful: %v", err)
	}
	if got.Version != "2.0" {
		t.Errorf("expected newest successful row, got version %s", got.Version)
	}
}

func TestFavorites(t *testing.T) {
	db := newTestDB(t)

	if err := db.AddFavorite("", "x", ""); !errors.Is(err, ErrEmptyBundleID) {
		t.Errorf("empty bundle id: got %v, want ErrEmptyBundleID", err)
	}
	if err := db.AddFavorite("com.example.beta", "beta app", ""); err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}
	if err := db.AddFavorite("com.example.alpha", "Alpha App", "keep around"); err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}
	// Re-adding updates, never duplicates.
	if err := db.AddFavorite("com.example.beta", "Beta App", ""); err != nil {
		t.Fatalf("AddFavorite upsert: %v", err)
	}

	favs, err := db.ListFavorites()
	if err != nil {
		t.Fatalf("ListFavorites: %v", err)
	}
	if len(favs) != 2 {
		t.Fatalf("ListFavorites returned %d rows, want 2", len(favs))
	}
	if favs[0].Name != "Alpha App" || favs[1].Name != "Beta App" {
		t.Errorf("expected alphabetical order with updated name, got %q, %q", favs[0].Name, favs[1].Name)
	}

	if err := db.RemoveFavorite("com.example.alpha"); err != nil {
		t.Fatalf("RemoveFavorite: %v", err)
	}
	if err := db.RemoveFavorite("com.example.alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("removing twice: got %v, want ErrNotFound", err)
	}
}

func TestRememberSearch(t *testing.T) {
	db := newTestDB(t)

	if err := db.RememberSearch(""); err != nil {
		t.Fatalf("empty query must be a no-op: %v", err)
	}

	for i := 0; i < RecentSearchLimit+5; i++ {
		if err := db.RememberSearch(fmt.Sprintf("query-%02d", i)); err != nil {
			t.Fatalf("RememberSearch: %v", err)
		}
	}
	if err := db.RememberSearch("query-10"); err != nil {
		t.Fatalf("RememberSearch repeat: %v", err)
	}

	searches, err := db.RecentSearches()
	if err != nil {
		t.Fatalf("RecentSearches: %v", err)
	}
	if len(searches) != RecentSearchLimit {
		t.Fatalf("retained %d searches, want %d", len(searches), RecentSearchLimit)
	}
	if searches[0].Query != "query-10" {
		t.Errorf("most recently used should be first, got %q", searches[0].Query)
	}
	if searches[0].UseCount != 2 {
		t.Errorf("UseCount = %d, want 2", searches[0].UseCount)
	}
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	for _, d := range []*Download{
		createTestDownload("com.example.app", StatusSucceeded, now),
		createTestDownload("com.example.app", StatusFailed, now),
	} {
		if err := db.RecordDownload(d); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats["total_downloads"].(int64) != 2 {
		t.Errorf("total_downloads = %v, want 2", stats["total_downloads"])
	}
	if stats["total_bytes"].(int64) != 104857600 {
		t.Errorf("total_bytes = %v, want one successful download's size", stats["total_bytes"])
	}
}

func TestExportCSV(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	downloads := []*Download{createTestDownload("com.example.app", StatusSucceeded, at)}

	var buf bytes.Buffer
	if err := ExportCSV(&buf, downloads); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header plus one row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "downloaded_at,bundle_id") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "com.example.app") || !strings.Contains(lines[1], "2025-06-01T12:00:00Z") {
		t.Errorf("unexpected row: %q", lines[1])
	}
}

func TestExportMarkdown(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := createTestDownload("com.example.app", StatusSucceeded, at)
	d.Name = ""

	var buf bytes.Buffer
	if err := ExportMarkdown(&buf, []*Download{d}); err != nil {
		t.Fatalf("ExportMarkdown: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "| Date | App | Version | Status | Size |") {
		t.Errorf("missing table header: %q", out)
	}
	// Falls back to the bundle id when there is no display name.
	if !strings.Contains(out, "| com.example.app |") {
		t.Errorf("missing bundle id fallback: %q", out)
	}
	if !strings.Contains(out, "100 MiB") {
		t.Errorf("missing humanized size: %q", out)
	}
}
