package parset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RewritePrefix copies the losoto template at template to out, replacing
// its last non-empty line with "prefix = <prefix>".
func RewritePrefix(template, prefix, out string) error {
	data, err := os.ReadFile(template)
	if err != nil {
		return fmt.Errorf("read losoto template: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	line := "prefix = " + prefix
	if len(lines) == 1 && lines[0] == "" {
		lines[0] = line
	} else {
		lines[len(lines)-1] = line
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("create losoto dir: %w", err)
	}
	if err := os.WriteFile(out, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("write losoto parset: %w", err)
	}
	return nil
}
