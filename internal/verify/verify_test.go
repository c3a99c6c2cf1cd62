package verify

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeArchive builds a zip at path with the given entry names, padding the
// final size past MinArchiveSize with an uncompressed filler entry.
func writeArchive(t *testing.T, path string, entries []string, pad bool) {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := f.Write([]byte("content")); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if pad {
		hdr := &zip.FileHeader{Name: "filler.bin", Method: zip.Store}
		f, err := w.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create filler: %v", err)
		}
		if _, err := f.Write(make([]byte, MinArchiveSize+4096)); err != nil {
			t.Fatalf("write filler: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

func TestArchive_MissingFile(t *testing.T) {
	res := Archive(filepath.Join(t.TempDir(), "missing.ipa"), "Example App", nil, discardLogger())
	if res.Valid {
		t.Fatal("missing file must not verify")
	}
	if !res.ShouldRetry {
		t.Error("missing file is transient and should be retryable")
	}
}

func TestArchive_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ipa")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	res := Archive(path, "Example App", nil, discardLogger())
	if res.Valid || !res.ShouldRetry {
		t.Errorf("0-byte file: got %+v, want invalid and retryable", res)
	}
}

func TestArchive_Undersized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.ipa")
	if err := os.WriteFile(path, make([]byte, 50*1024), 0644); err != nil {
		t.Fatal(err)
	}
	res := Archive(path, "Example App", nil, discardLogger())
	if res.Valid || !res.ShouldRetry {
		t.Errorf("50 KiB file: got %+v, want invalid and retryable", res)
	}
}

func TestArchive_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.ipa")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), int(MinArchiveSize)+1), 0644); err != nil {
		t.Fatal(err)
	}
	res := Archive(path, "Example App", nil, discardLogger())
	if res.Valid || !res.ShouldRetry {
		t.Errorf("non-archive file: got %+v, want invalid and retryable", res)
	}
}

func TestArchive_Structure(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    bool
	}{
		{
			name:    "well-formed",
			entries: []string{"Payload/Foo.app/Foo", "Payload/Foo.app/Info.plist"},
			want:    true,
		},
		{
			name:    "missing payload bundle",
			entries: []string{"README.txt", "Info.plist"},
			want:    false,
		},
		{
			name:    "missing plist",
			entries: []string{"Payload/Foo.app/Foo"},
			want:    false,
		},
		{
			name:    "payload not at root",
			entries: []string{"nested/Payload/Foo.app/Info.plist"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "app.ipa")
			writeArchive(t, path, tt.entries, true)

			res := Archive(path, "Example App", nil, discardLogger())
			if res.Valid != tt.want {
				t.Errorf("Archive() = %+v, want valid=%v", res, tt.want)
			}
			if !tt.want && !res.ShouldRetry {
				t.Error("structural failures should be retryable")
			}
		})
	}
}

func TestArchive_SizeTolerance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.ipa")
	writeArchive(t, path, []string{"Payload/Foo.app/Info.plist"}, true)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	actual := info.Size()

	tests := []struct {
		name     string
		expected int64
		want     bool
	}{
		{"exact", actual, true},
		{"within 5 percent", actual + actual/50, true},
		{"outside tolerance", actual * 2, false},
		{"unknown size skips check", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Archive(path, "Example App", &Expected{SizeBytes: tt.expected}, discardLogger())
			if res.Valid != tt.want {
				t.Errorf("expected size %d: got %+v, want valid=%v", tt.expected, res, tt.want)
			}
		})
	}
}

func TestArchive_ChecksumIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.ipa")
	writeArchive(t, path, []string{"Payload/Foo.app/Info.plist"}, true)

	// A supplied checksum passes through unverified.
	res := Archive(path, "Example App", &Expected{Checksum: "deadbeef"}, discardLogger())
	if !res.Valid {
		t.Errorf("checksum must be a no-op pass-through, got %+v", res)
	}
}
