package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/selfcal/internal/logging"
)

// QuarantineDir is the directory, relative to a results directory, that
// receives corrupted files.
const QuarantineDir = "quarantine"

// Quarantine moves filePath into <resultsDir>/quarantine with a timestamped
// name and returns the new location.
func Quarantine(resultsDir, filePath string) (string, error) {
	dir := filepath.Join(resultsDir, QuarantineDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), time.Now().Format("20060102T150405"))
	dst := filepath.Join(dir, name)
	if err := os.Rename(filePath, dst); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return dst, nil
}

// RestoreFromBackup copies filePath+".bak" over filePath after checking that
// the backup carries a valid header for fileType.
func RestoreFromBackup(filePath, fileType string) error {
	bakPath := filePath + ".bak"
	content, err := os.ReadFile(bakPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no backup file: %s", bakPath)
		}
		return fmt.Errorf("read backup: %w", err)
	}
	if err := ValidateSchemaHeaderFromBytes(content, fileType); err != nil {
		return fmt.Errorf("backup is also corrupted: %w", err)
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

// GenerateSkeleton writes an empty document of fileType to filePath.
func GenerateSkeleton(filePath, fileType string) error {
	content, err := yamlv3.Marshal(skeletonFor(fileType))
	if err != nil {
		return fmt.Errorf("marshal skeleton: %w", err)
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("write skeleton: %w", err)
	}
	return nil
}

// RecoverCorruptedFile quarantines filePath, then restores it from its
// backup or, failing that, replaces it with an empty skeleton.
func RecoverCorruptedFile(resultsDir, filePath, fileType string, log *logging.Logger) error {
	dst, err := Quarantine(resultsDir, filePath)
	if err != nil {
		return fmt.Errorf("quarantine failed: %w", err)
	}
	log.Warnf("quarantined corrupted file src=%s dst=%s", filePath, dst)

	err = RestoreFromBackup(filePath, fileType)
	if err == nil {
		log.Infof("restored from backup file=%s", filePath)
		return nil
	}
	log.Warnf("backup restore failed file=%s error=%v, generating skeleton", filePath, err)

	if err := GenerateSkeleton(filePath, fileType); err != nil {
		return fmt.Errorf("skeleton generation failed: %w", err)
	}
	return nil
}

func skeletonFor(fileType string) map[string]any {
	doc := map[string]any{
		"schema_version": CurrentSchemaVersion,
		"file_type":      fileType,
	}
	switch fileType {
	case FileTypeRunJournal:
		doc["calls"] = 0
		doc["entries"] = []any{}
		doc["attrs"] = map[string]any{}
	case FileTypeQualityRecord:
		doc["records"] = []any{}
	}
	return doc
}
