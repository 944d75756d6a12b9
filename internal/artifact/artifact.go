// Package artifact names and manages the files a reduction stage produces.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/msageha/selfcal/internal/model"
)

// InitDir is the directory of the untouched (sequence 0) phase stage.
const InitDir = "init"

var dirPrefixes = map[model.StepType]string{
	model.StepPhase:    "pcal",
	model.StepDiagonal: "apcal",
	model.StepTEC:      "teccal",
	model.StepTECPhase: "tpcal",
	model.StepPhaseUp:  "pucal",
}

// StageDir returns the artifact directory name of a step. Predict steps
// have no directory and return "".
func StageDir(s model.Step) string {
	if s.Type == model.StepPhase && s.Seq == 0 {
		return InitDir
	}
	prefix, ok := dirPrefixes[s.Type]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s%d", prefix, s.Seq)
}

// Table identifies one of the solution tables a stage writes.
type Table string

const (
	TablePhase     Table = "phase"     // phase-only solve
	TableDiagPhase Table = "diagphase" // diagonal stage, phase solve
	TableDiagAmp   Table = "diagamp"   // diagonal stage, amplitude solve
	TableTEC       Table = "tec"
	TableTECPhase  Table = "tecphase"
	TablePrePhase  Table = "prephase" // phase-up, prephase solve
	TableUpDiag    Table = "updiag"   // phase-up, diagonal solve
)

// SolutionTable returns the file name of a solution table for sequence n.
// Later stages and the quality tooling find tables by these names.
func SolutionTable(t Table, n int) string {
	switch t {
	case TablePhase:
		if n == 0 {
			return "instrument.h5"
		}
		return fmt.Sprintf("instrument_%d.h5", n)
	case TableDiagPhase:
		return fmt.Sprintf("instrument_p%d.h5", n)
	case TableDiagAmp:
		return fmt.Sprintf("instrument_a%d.h5", n)
	case TableTEC:
		return fmt.Sprintf("instrument_t%d.h5", n)
	case TableTECPhase:
		return fmt.Sprintf("instrument_tp%d.h5", n)
	case TablePrePhase:
		return fmt.Sprintf("instrument_up%d.h5", n)
	case TableUpDiag:
		return fmt.Sprintf("instrument_ua%d.h5", n)
	}
	panic(fmt.Sprintf("artifact: unknown solution table %q", t))
}

// EnsureDir creates path (and parents) if absent. An existing directory is
// left untouched; an existing non-directory is an error.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("ensure dir %s: exists and is not a directory", path)
		}
		return nil
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("ensure dir %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("ensure dir %s: %w", path, err)
	}
}

// MissingError reports an expected output file that does not exist.
type MissingError struct {
	Path string
	What string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing %s: %s", e.What, e.Path)
}

func (e *MissingError) FormatStderr() string {
	return fmt.Sprintf("error: missing %s\npath: %s\n", e.What, e.Path)
}

// Require returns a *MissingError when path does not exist.
func Require(path, what string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &MissingError{Path: path, What: what}
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CopyFile copies src to dst, replacing dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// MSName returns the base name of a measurement set path without any
// trailing separator.
func MSName(ms string) string {
	return filepath.Base(filepath.Clean(ms))
}
