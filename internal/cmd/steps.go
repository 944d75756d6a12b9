package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/model"
)

var stepDescriptions = map[model.StepType]string{
	model.StepPhase:    "phase-only calibration on the core stations",
	model.StepDiagonal: "diagonal (phase and amplitude) calibration with model clean-up",
	model.StepTEC:      "differential TEC calibration",
	model.StepTECPhase: "combined TEC and phase calibration",
	model.StepPhaseUp:  "phase up the core stations into one (rewrites the measurement set)",
	model.StepPredict:  "predict the sky model into the MODEL_DATA column",
}

func newStepsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "steps",
		Short:       "List the reduction step characters",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(*cobra.Command, []string) error {
			rows := make([][]string, 0, len(model.StepTypes))
			for _, t := range model.StepTypes {
				dir := artifact.StageDir(model.Step{Type: t, Seq: 1})
				if dir == "" {
					dir = "-"
				} else {
					dir = strings.TrimSuffix(dir, "1") + "N"
				}
				rows = append(rows, []string{string(rune(t)), t.String(), dir, stepDescriptions[t]})
			}
			fmt.Fprint(a.stdout, renderTable([]string{"STEP", "NAME", "DIR", "DESCRIPTION"}, rows))
			fmt.Fprintln(a.stdout, mutedStyle.Render("Stages of one type are numbered 1..N in order; --init makes the first phase stage 'init'."))
			return nil
		},
	}
}
