// Package pipeline turns a reduction-step string into stage executors and
// runs them in order over one or more measurement sets.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/msageha/selfcal/internal/model"
)

// PreconditionError is returned before any stage runs when the requested
// run cannot start.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

func (e *PreconditionError) FormatStderr() string {
	return fmt.Sprintf("error: %s\nhint: run 'selfcal steps' for the step characters\n", e.Reason)
}

func preconditionf(format string, args ...any) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

// ErrAborted is returned when the phase-up confirmation is declined.
var ErrAborted = errors.New("pipeline: aborted at phase-up confirmation")

// ParseOptions controls step numbering.
type ParseOptions struct {
	// InitPhase numbers phase stages from 0 so the first one is the
	// "init" stage.
	InitPhase bool
}

// ParseSteps converts a step string into typed steps. Each type is
// numbered 1..k in the order its characters occur, independently of the
// other types: "ppdpd" yields p#1 p#2 d#1 p#3 d#2.
func ParseSteps(s string, opts ParseOptions) ([]model.Step, error) {
	if s == "" {
		return nil, preconditionf("empty step string")
	}
	counts := make(map[model.StepType]int)
	steps := make([]model.Step, 0, len(s))
	for i := 0; i < len(s); i++ {
		t := model.StepType(s[i])
		if !t.Valid() {
			return nil, preconditionf("unknown reduction step %q at position %d", s[i], i)
		}
		seq := counts[t] + 1
		if t == model.StepPhase && opts.InitPhase {
			seq = counts[t]
		}
		counts[t]++
		steps = append(steps, model.Step{Type: t, Seq: seq})
	}
	if counts[model.StepPhaseUp] > 1 {
		return nil, preconditionf("step string %q contains %d phase-ups, at most one is allowed", s, counts[model.StepPhaseUp])
	}
	return steps, nil
}

// Contains reports whether steps include a step of type t.
func Contains(steps []model.Step, t model.StepType) bool {
	for _, s := range steps {
		if s.Type == t {
			return true
		}
	}
	return false
}

// NeedsModel reports whether any step consumes an external model.
func NeedsModel(steps []model.Step) bool {
	for _, s := range steps {
		if s.Type.NeedsModel() {
			return true
		}
	}
	return false
}

// ExpandMeasurementSets returns the measurement sets to process. In multi
// mode path is a directory whose sub-directories are the sets, sorted by
// name; otherwise path is the single set.
func ExpandMeasurementSets(path string, multi bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, preconditionf("measurement set %s: %v", path, err)
	}
	if !info.IsDir() {
		return nil, preconditionf("measurement set %s is not a directory", path)
	}
	if !multi {
		return []string{filepath.Clean(path)}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, preconditionf("list measurement sets in %s: %v", path, err)
	}
	var sets []string
	for _, e := range entries {
		if e.IsDir() {
			sets = append(sets, filepath.Join(path, e.Name()))
		}
	}
	if len(sets) == 0 {
		return nil, preconditionf("no measurement sets found under %s", path)
	}
	sort.Strings(sets)
	return sets, nil
}
