// Package soltab writes losoto parsets that edit solution tables in place.
package soltab

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Soltab names inside the default solution set.
const (
	Phase     = "sol000/phase000"
	Amplitude = "sol000/amplitude000"
)

// CoreStation is the name substring of core stations.
const CoreStation = "CS"

// Excluding returns an antenna regular expression matching every station
// whose name does not contain substr.
func Excluding(substr string) string {
	return fmt.Sprintf("^((?!%s).)*$", substr)
}

// Reset is one losoto RESET operation: phases are set to zero and
// amplitudes to one for the selected antennas.
type Reset struct {
	Name     string // step name, unique within a parset
	Soltab   string
	Antennas string // antenna selection regex
}

// Render returns the parset text for ops, in order.
func Render(ops []Reset) (string, error) {
	if len(ops) == 0 {
		return "", fmt.Errorf("soltab: no operations")
	}
	var b strings.Builder
	seen := make(map[string]bool, len(ops))
	for i, op := range ops {
		if op.Name == "" || op.Soltab == "" {
			return "", fmt.Errorf("soltab: operation %d needs a name and a soltab", i)
		}
		if seen[op.Name] {
			return "", fmt.Errorf("soltab: duplicate step name %q", op.Name)
		}
		seen[op.Name] = true

		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n", op.Name)
		b.WriteString("operation = RESET\n")
		fmt.Fprintf(&b, "soltab = %s\n", op.Soltab)
		if op.Antennas != "" {
			fmt.Fprintf(&b, "ant = %s\n", op.Antennas)
		}
	}
	return b.String(), nil
}

// Write renders ops into path, creating parent directories.
func Write(path string, ops []Reset) error {
	text, err := Render(ops)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create soltab parset dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("write soltab parset: %w", err)
	}
	return nil
}

// ResetNonCorePhase clears phase corrections on every non-core station.
func ResetNonCorePhase() []Reset {
	return []Reset{
		{Name: "resetphase", Soltab: Phase, Antennas: Excluding(CoreStation)},
	}
}

// ResetNonCoreDiagonal clears amplitude and phase corrections on remote and
// international stations, leaving core stations untouched.
func ResetNonCoreDiagonal() []Reset {
	return []Reset{
		{Name: "resetamp", Soltab: Amplitude, Antennas: Excluding(CoreStation)},
		{Name: "resetphase", Soltab: Phase, Antennas: Excluding(CoreStation)},
	}
}
