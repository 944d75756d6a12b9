package model

import "fmt"

// StepType is the single-character code of a reduction step.
type StepType byte

const (
	StepPhase    StepType = 'p'
	StepDiagonal StepType = 'd'
	StepTEC      StepType = 't'
	StepTECPhase StepType = 'a'
	StepPhaseUp  StepType = 'u'
	StepPredict  StepType = 'm'
)

var stepNames = map[StepType]string{
	StepPhase:    "phase",
	StepDiagonal: "diagonal",
	StepTEC:      "tec",
	StepTECPhase: "tec+phase",
	StepPhaseUp:  "phaseup",
	StepPredict:  "predict",
}

// StepTypes lists the supported types in help order.
var StepTypes = []StepType{StepPhase, StepDiagonal, StepTEC, StepPhaseUp, StepPredict, StepTECPhase}

func (t StepType) String() string {
	if n, ok := stepNames[t]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%q)", byte(t))
}

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	_, ok := stepNames[t]
	return ok
}

// NeedsModel reports whether the step consumes an external sky model.
func (t StepType) NeedsModel() bool {
	return t == StepPhaseUp || t == StepPredict
}

// Images reports whether the step produces a stage image.
func (t StepType) Images() bool {
	switch t {
	case StepPhase, StepDiagonal, StepTEC, StepTECPhase:
		return true
	}
	return false
}

// Step is one reduction step with its per-type sequence number.
type Step struct {
	Type StepType `yaml:"type"`
	Seq  int      `yaml:"seq"`
}

func (s Step) String() string {
	return fmt.Sprintf("%s#%d", s.Type, s.Seq)
}
