// ABOUTME: Unit tests for atomic JSON document persistence
// ABOUTME: Covers absent files, round-trips, update cycles, and crash leftovers

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type testDoc struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func TestLoad_AbsentFileReturnsDefault(t *testing.T) {
	doc := New[testDoc](filepath.Join(t.TempDir(), "missing.json"))

	got, err := doc.Load(testDoc{Name: "default"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != "default" {
		t.Errorf("Load() = %+v, want default value", got)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	doc := New[testDoc](filepath.Join(t.TempDir(), "doc.json"))

	want := testDoc{Name: "example", Count: 3, Tags: []string{"a", "b"}}
	if err := doc.Write(want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := doc.Load(testDoc{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != want.Name || got.Count != want.Count || len(got.Tags) != 2 {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestWrite_PrettyPrintedWithTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	doc := New[testDoc](path)

	if err := doc.Write(testDoc{Name: "x", Count: 1}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	text := string(data)
	if !strings.HasSuffix(text, "\n") {
		t.Error("document should end with a trailing newline")
	}
	if !strings.Contains(text, "  \"name\"") {
		t.Error("document should be indented with two spaces")
	}
}

func TestWrite_LeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	doc := New[testDoc](filepath.Join(dir, "doc.json"))

	if err := doc.Write(testDoc{Name: "x"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoad_CrashLeftoverDoesNotShadowDocument(t *testing.T) {
	// A temp file abandoned mid-write must never be visible under the real
	// path: the previous document stays intact.
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	doc := New[testDoc](path)

	if err := doc.Write(testDoc{Name: "intact", Count: 7}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// Simulate a crash between temp-file write and rename.
	leftover := filepath.Join(dir, "doc.json.tmp-crashed")
	if err := os.WriteFile(leftover, []byte(`{"name":"half`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := doc.Load(testDoc{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != "intact" || got.Count != 7 {
		t.Errorf("Load() = %+v, want the previous valid document", got)
	}
}

func TestLoad_CorruptFileReturnsStorageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	doc := New[testDoc](path)
	_, err := doc.Load(testDoc{})
	if err == nil {
		t.Fatal("Load() should fail on corrupt content")
	}
	if !errors.Is(err, ErrStorage) {
		t.Errorf("Load() error = %v, want ErrStorage", err)
	}
}

func TestUpdate_ModifyErrorLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	doc := New[testDoc](path)

	if err := doc.Write(testDoc{Name: "before"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	wantErr := errors.New("modify failed")
	_, err := doc.Update(testDoc{}, func(v testDoc) (testDoc, error) {
		v.Name = "after"
		return v, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Update() error = %v, want %v", err, wantErr)
	}

	got, err := doc.Load(testDoc{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != "before" {
		t.Errorf("document was modified despite aborted update: %+v", got)
	}
}

func TestUpdate_ConcurrentIncrementsDoNotLoseWrites(t *testing.T) {
	doc := New[testDoc](filepath.Join(t.TempDir(), "doc.json"))

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := doc.Update(testDoc{}, func(v testDoc) (testDoc, error) {
				v.Count++
				return v, nil
			})
			if err != nil {
				t.Errorf("Update() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := doc.Load(testDoc{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Count != workers {
		t.Errorf("Count = %d, want %d (lost update)", got.Count, workers)
	}
}
