package segments

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/legendsaurav/scramer/server/core/ccc/logging"
)

var fixedNow = time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *FileStore {
	store, err := NewFileStore(logging.NopLogger, t.TempDir(), DefaultStoreOptions())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	store.now = func() time.Time { return fixedNow }
	return store
}

func saveTestSegment(t *testing.T, store *FileStore, req SaveRequest) *StoredSegment {
	t.Helper()
	if req.Data == nil {
		req.Data = strings.NewReader("segment-data")
	}
	seg, err := store.SaveSegment(context.Background(), req)
	if err != nil {
		t.Fatalf("SaveSegment failed: %v", err)
	}
	return seg
}

func TestSaveSegment_OrganizesByBucket(t *testing.T) {
	store := setupTestStore(t)

	seg := saveTestSegment(t, store, SaveRequest{
		Project:       "proj-1",
		Tool:          "cam",
		Date:          "2024-01-01",
		Discriminator: "1",
		Extension:     ".webm",
		Data:          strings.NewReader("hello"),
	})

	expectedDir := filepath.Join(store.Root(), "proj-1", "cam", "2024-01-01")
	if filepath.Dir(seg.Path) != expectedDir {
		t.Errorf("Expected segment in %s, got %s", expectedDir, seg.Path)
	}
	if seg.Filename != "cam_0000000000001.webm" {
		t.Errorf("Unexpected filename: %s", seg.Filename)
	}
	if seg.Size != 5 {
		t.Errorf("Expected size 5, got %d", seg.Size)
	}

	data, err := os.ReadFile(seg.Path)
	if err != nil {
		t.Fatalf("Failed to read stored segment: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Unexpected content: %q", data)
	}
}

func TestSaveSegment_Defaults(t *testing.T) {
	store := setupTestStore(t)

	seg := saveTestSegment(t, store, SaveRequest{})

	if seg.Bucket.Project != "unknown" || seg.Bucket.Tool != "unknown" {
		t.Errorf("Expected unknown project and tool, got %+v", seg.Bucket)
	}
	if seg.Bucket.Date != "2024-01-01" {
		t.Errorf("Expected today's date, got %s", seg.Bucket.Date)
	}
	expected := "unknown_1704112200000.webm"
	if seg.Filename != expected {
		t.Errorf("Expected millisecond discriminator %s, got %s", expected, seg.Filename)
	}
}

func TestSaveSegment_NoLeftoverTempFiles(t *testing.T) {
	store := setupTestStore(t)

	seg := saveTestSegment(t, store, SaveRequest{Project: "p", Tool: "cam", Date: "2024-01-01", Discriminator: "a"})

	entries, err := os.ReadDir(filepath.Dir(seg.Path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only the segment in bucket dir, got %v", names)
	}
}

func TestSaveSegment_PathTraversalStaysInsideRoot(t *testing.T) {
	store := setupTestStore(t)

	inputs := []SaveRequest{
		{Project: "../../etc", Tool: "..", Date: "../..", Discriminator: "../passwd"},
		{Project: "/abs/path", Tool: "a/b", Date: "2024/01/01", Discriminator: "x/../../y"},
		{Project: "..\\..\\win", Tool: "tool\x00", Date: "..", Discriminator: "."},
		{Project: "ünïcödé", Tool: "cam 1", Date: "2024-01-01T10:00:00", Discriminator: "seg 7"},
	}

	for _, req := range inputs {
		seg := saveTestSegment(t, store, req)

		rel, err := filepath.Rel(store.Root(), seg.Path)
		if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			t.Errorf("Segment for %+v escaped root: %s", req, seg.Path)
		}
		if strings.Count(rel, string(filepath.Separator)) != 3 {
			t.Errorf("Expected <project>/<tool>/<date>/<file>, got %s", rel)
		}
	}
}

func TestSaveSegment_DateKeepsISOCharacters(t *testing.T) {
	store := setupTestStore(t)

	seg := saveTestSegment(t, store, SaveRequest{Project: "p", Tool: "cam", Date: "2024-01-01T10:00:00Z", Discriminator: "1"})

	if seg.Bucket.Date != "2024-01-01T10:00:00Z" {
		t.Errorf("Expected ISO characters preserved, got %s", seg.Bucket.Date)
	}
}

func TestSaveSegment_LastWriteWins(t *testing.T) {
	store := setupTestStore(t)
	req := SaveRequest{Project: "p", Tool: "cam", Date: "2024-01-01", Discriminator: "5"}

	req.Data = strings.NewReader("first")
	saveTestSegment(t, store, req)
	req.Data = strings.NewReader("second")
	seg := saveTestSegment(t, store, req)

	data, _ := os.ReadFile(seg.Path)
	if string(data) != "second" {
		t.Errorf("Expected last write to win, got %q", data)
	}

	paths, err := store.ListSegments(seg.Bucket)
	if err != nil {
		t.Fatalf("ListSegments failed: %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("Expected one segment, got %d", len(paths))
	}
}

func TestSaveSegment_DistinctDiscriminatorsDoNotCollide(t *testing.T) {
	store := setupTestStore(t)
	a := saveTestSegment(t, store, SaveRequest{Project: "p", Tool: "cam", Date: "d", Discriminator: "seg-a"})
	b := saveTestSegment(t, store, SaveRequest{Project: "p", Tool: "cam", Date: "d", Discriminator: "seg_a"})

	if a.Path == b.Path {
		t.Errorf("Distinct discriminators collided: %s", a.Path)
	}
}

func TestSaveSegment_ReservedName(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.SaveSegment(context.Background(), SaveRequest{
		Project:       "p",
		Tool:          "final",
		Date:          "2024-01-01",
		Discriminator: "2x",
		Extension:     ".mp4",
		Data:          strings.NewReader("x"),
	})
	if !IsReservedNameError(err) {
		t.Fatalf("Expected ReservedNameError, got %v", err)
	}
}

func TestSaveSegment_ExtensionNormalization(t *testing.T) {
	store := setupTestStore(t)

	tests := map[string]string{
		".MP4":           ".mp4",
		"mkv":            ".mkv",
		"":               ".webm",
		".we/bm":         ".webm",
		".waytoolongext": ".webm",
	}
	for in, want := range tests {
		seg := saveTestSegment(t, store, SaveRequest{Project: "p", Tool: "cam", Date: "d", Discriminator: "x", Extension: in})
		if filepath.Ext(seg.Filename) != want {
			t.Errorf("Extension %q: expected %s, got %s", in, want, seg.Filename)
		}
	}
}

func TestSaveSegment_StorageFailure(t *testing.T) {
	store := setupTestStore(t)

	// a regular file where the project directory should go
	blocker := filepath.Join(store.Root(), "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}

	_, err := store.SaveSegment(context.Background(), SaveRequest{
		Project: "blocked",
		Tool:    "cam",
		Date:    "2024-01-01",
		Data:    bytes.NewReader([]byte("x")),
	})
	if !IsStorageFailure(err) {
		t.Fatalf("Expected StorageFailure, got %v", err)
	}

	retained := RetainedPayload(err)
	if filepath.Dir(retained) != filepath.Join(store.Root(), FailedDirName) {
		t.Fatalf("Expected payload retained under %s, got %q", FailedDirName, retained)
	}
	if filepath.Ext(retained) != ".webm" {
		t.Errorf("Expected retained payload to keep the extension, got %s", retained)
	}
	data, readErr := os.ReadFile(retained)
	if readErr != nil {
		t.Fatalf("Retained payload missing: %v", readErr)
	}
	if string(data) != "x" {
		t.Errorf("Unexpected retained content: %q", data)
	}
}

func TestSaveSegment_RetainedPayloadNotListed(t *testing.T) {
	store := setupTestStore(t)

	blocker := filepath.Join(store.Root(), "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}
	if _, err := store.SaveSegment(context.Background(), SaveRequest{Project: "blocked", Tool: "cam", Date: "d", Data: strings.NewReader("y")}); err == nil {
		t.Fatal("Expected storage failure")
	}

	// a later upload to a healthy bucket is unaffected by the retained file
	seg := saveTestSegment(t, store, SaveRequest{Project: "p", Tool: "cam", Date: "d", Discriminator: "1"})
	paths, err := store.ListSegments(seg.Bucket)
	if err != nil {
		t.Fatalf("ListSegments failed: %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("Expected only the stored segment, got %v", paths)
	}
}

func TestSaveSegment_NumericDiscriminatorTooWide(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.SaveSegment(context.Background(), SaveRequest{
		Project:       "p",
		Tool:          "cam",
		Date:          "d",
		Discriminator: "10000000000000",
		Data:          strings.NewReader("x"),
	})
	if !IsInvalidDiscriminatorError(err) {
		t.Fatalf("Expected InvalidDiscriminatorError, got %v", err)
	}
}

func TestSaveSegment_LeadingZerosAddressSameSegment(t *testing.T) {
	store := setupTestStore(t)

	a := saveTestSegment(t, store, SaveRequest{Project: "p", Tool: "cam", Date: "d", Discriminator: "1"})
	b := saveTestSegment(t, store, SaveRequest{Project: "p", Tool: "cam", Date: "d", Discriminator: "001"})
	if a.Path != b.Path {
		t.Errorf("Expected 1 and 001 to share a path, got %s and %s", a.Path, b.Path)
	}
}

func TestSaveSegment_CancelledContext(t *testing.T) {
	store := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.SaveSegment(ctx, SaveRequest{Data: strings.NewReader("x")}); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestListSegments_OrderAndFiltering(t *testing.T) {
	store := setupTestStore(t)
	bucket := Bucket{Project: "p", Tool: "cam", Date: "2024-01-01"}

	// numeric discriminators of different widths must still sort numerically
	for _, disc := range []string{"10", "9", "1", "100"} {
		saveTestSegment(t, store, SaveRequest{Project: "p", Tool: "cam", Date: "2024-01-01", Discriminator: disc})
	}

	dir := store.BucketDir(bucket)
	for _, name := range []string{"final.mp4", "final_2x.mp4", "concat.txt", "notes.txt", ".partial.webm", ".merge.lock"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.webm"), 0755); err != nil {
		t.Fatalf("Failed to create nested dir: %v", err)
	}

	paths, err := store.ListSegments(bucket)
	if err != nil {
		t.Fatalf("ListSegments failed: %v", err)
	}

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	expected := []string{
		"cam_0000000000001.webm",
		"cam_0000000000009.webm",
		"cam_0000000000010.webm",
		"cam_0000000000100.webm",
	}
	if strings.Join(names, ",") != strings.Join(expected, ",") {
		t.Errorf("Unexpected order:\n got %v\nwant %v", names, expected)
	}
}

func TestListSegments_MissingBucket(t *testing.T) {
	store := setupTestStore(t)

	paths, err := store.ListSegments(Bucket{Project: "nope", Tool: "cam", Date: "2024-01-01"})
	if err != nil {
		t.Fatalf("Expected no error for missing bucket, got %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("Expected no segments, got %v", paths)
	}
}

func TestEnsureBucketDir_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	bucket := Bucket{Project: "p", Tool: "cam", Date: "2024-01-01"}

	first, err := store.EnsureBucketDir(bucket)
	if err != nil {
		t.Fatalf("EnsureBucketDir failed: %v", err)
	}
	second, err := store.EnsureBucketDir(bucket)
	if err != nil {
		t.Fatalf("Second EnsureBucketDir failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected same dir, got %s and %s", first, second)
	}
	if _, err := store.EnsureBucketDir(Bucket{Project: "p"}); !IsStorageFailure(err) {
		t.Errorf("Expected StorageFailure for incomplete bucket, got %v", err)
	}
}
