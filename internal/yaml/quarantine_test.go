package yaml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/selfcal/internal/logging"
)

func TestQuarantine(t *testing.T) {
	results := t.TempDir()
	path := filepath.Join(results, "journal.yaml")
	if err := os.WriteFile(path, []byte("entries: [\n"), 0644); err != nil {
		t.Fatal(err)
	}

	dst, err := Quarantine(results, path)
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original file should be gone")
	}
	if filepath.Dir(dst) != filepath.Join(results, QuarantineDir) {
		t.Errorf("quarantined into %s", dst)
	}
	if name := filepath.Base(dst); !strings.HasPrefix(name, "journal.yaml.") || !strings.HasSuffix(name, ".corrupt") {
		t.Errorf("unexpected quarantine name %s", name)
	}
}

func TestRestoreFromBackup_RejectsWrongType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.yaml")
	if err := os.WriteFile(path+".bak", []byte("schema_version: 1\nfile_type: quality_record\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := RestoreFromBackup(path, FileTypeRunJournal); err == nil {
		t.Fatal("expected error for mismatched backup")
	}
}

func TestRecoverCorruptedFile_UsesBackup(t *testing.T) {
	results := t.TempDir()
	path := filepath.Join(results, "journal.yaml")
	good := "schema_version: 1\nfile_type: run_journal\ncalls: 4\n"
	if err := os.WriteFile(path+".bak", []byte(good), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("calls: [\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RecoverCorruptedFile(results, path, FileTypeRunJournal, logging.Nop()); err != nil {
		t.Fatalf("RecoverCorruptedFile: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != good {
		t.Errorf("restored content = %q", content)
	}
}

func TestRecoverCorruptedFile_FallsBackToSkeleton(t *testing.T) {
	results := t.TempDir()
	path := filepath.Join(results, "quality.yaml")
	if err := os.WriteFile(path, []byte("records: [\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RecoverCorruptedFile(results, path, FileTypeQualityRecord, logging.Nop()); err != nil {
		t.Fatalf("RecoverCorruptedFile: %v", err)
	}
	if err := ValidateSchemaHeader(path, FileTypeQualityRecord); err != nil {
		t.Fatalf("skeleton header: %v", err)
	}

	content, _ := os.ReadFile(path)
	var doc map[string]any
	if err := yamlv3.Unmarshal(content, &doc); err != nil {
		t.Fatal(err)
	}
	if recs, ok := doc["records"].([]any); !ok || len(recs) != 0 {
		t.Errorf("records = %#v", doc["records"])
	}
}
