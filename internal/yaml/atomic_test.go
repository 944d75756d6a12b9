package yaml

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"
)

func TestAtomicWrite_KeepsPreviousAsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.yaml")

	if err := AtomicWrite(path, map[string]int{"calls": 1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWrite(path, map[string]int{"calls": 2}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	read := func(p string) int {
		t.Helper()
		content, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("ReadFile %s: %v", p, err)
		}
		var doc map[string]int
		if err := yamlv3.Unmarshal(content, &doc); err != nil {
			t.Fatalf("Unmarshal %s: %v", p, err)
		}
		return doc["calls"]
	}

	if got := read(path); got != 2 {
		t.Errorf("current calls = %d, want 2", got)
	}
	if got := read(path + ".bak"); got != 1 {
		t.Errorf("backup calls = %d, want 1", got)
	}
}

func TestAtomicWriteRaw_InvalidYAMLLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.yaml")

	if err := AtomicWriteRaw(path, []byte(":\n  broken: [\n")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory should stay empty, found %s", entries[0].Name())
	}
}

func TestLoad_ChecksHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quality.yaml")

	type doc struct {
		SchemaHeader `yaml:",inline"`
		Records      []string `yaml:"records"`
	}
	want := doc{SchemaHeader: NewHeader(FileTypeQualityRecord), Records: []string{"pcal1"}}
	if err := AtomicWrite(path, want); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	var got doc
	if err := Load(path, FileTypeQualityRecord, &got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Records) != 1 || got.Records[0] != "pcal1" {
		t.Errorf("records = %v", got.Records)
	}

	err := Load(path, FileTypeRunJournal, &got)
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
	if !strings.Contains(err.Error(), "file_type mismatch") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var v map[string]any
	err := Load(filepath.Join(t.TempDir(), "absent.yaml"), FileTypeRunJournal, &v)
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
