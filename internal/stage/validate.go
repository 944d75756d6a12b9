package stage

import (
	"fmt"
	"path/filepath"

	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/internal/parset"
)

// dpppTemplates lists the DPPP parset templates each step type reads, in
// the order its executor issues them.
var dpppTemplates = map[model.StepType][]string{
	model.StepPhase:    {"ddecal_init.pset", "acal_init.pset"},
	model.StepTEC:      {"ddecal_teconly.pset", "acal_teconly.pset"},
	model.StepTECPhase: {"ddecal_tecphase.pset", "acal_tecphase.pset"},
	model.StepDiagonal: {"ddecal_init.pset", "acal_init.pset", "ddecal_ampself.pset", "acal_ampself.pset"},
	model.StepPhaseUp: {
		"ddecal_prephase.pset", "acal_prephase.pset",
		"ddecal_phaseup_diag.pset", "acal_phaseup_diag.pset",
		"phaseup.pset",
	},
}

// predictTemplate is read when a source-database model is predicted.
const predictTemplate = "predict.pset"

// Templates returns the DPPP parset templates a step of type t reads.
func Templates(t model.StepType) []string {
	return append([]string(nil), dpppTemplates[t]...)
}

// Validate reads every input the steps will need before any of them runs:
// the DPPP templates, the imaging template and the sky model. It issues no
// commands and creates nothing.
func Validate(steps []model.Step, env Env) error {
	parsed := make(map[string]bool)
	parse := func(name string) error {
		if parsed[name] {
			return nil
		}
		parsed[name] = true
		_, err := parset.Parse(filepath.Join(env.ParsetDir, name))
		return err
	}

	var imaging, needsModel, needsPredict, imaged bool
	for _, s := range steps {
		for _, name := range dpppTemplates[s.Type] {
			if err := parse(name); err != nil {
				return fmt.Errorf("stage %s: %w", s, err)
			}
		}
		switch {
		case s.Type.Images():
			imaging, imaged = true, true
		case s.Type == model.StepPredict:
			needsModel, needsPredict = true, true
		case s.Type == model.StepPhaseUp:
			// A phase-up after an imaging stage predicts that stage's model.
			needsModel = true
			needsPredict = needsPredict || !imaged
		}
	}

	if imaging {
		if _, err := ImagingBase(filepath.Join(env.ParsetDir, env.Imaging.Template)); err != nil {
			return err
		}
	}
	if !needsModel {
		return nil
	}
	kind, _, err := ClassifyModel(env.Model)
	if err != nil {
		return err
	}
	if needsPredict && kind != ModelFITS {
		if err := parse(predictTemplate); err != nil {
			return fmt.Errorf("stage %s: %w", model.StepPredict, err)
		}
	}
	return nil
}
