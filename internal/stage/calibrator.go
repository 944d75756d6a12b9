package stage

import (
	"context"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/command"
	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/internal/parset"
)

// losotoExport is one diagnostic export of a stage solution table.
type losotoExport struct {
	template string
	table    artifact.Table
	prefix   string
}

// calibrator is the solve -> apply -> image -> export shape shared by the
// phase-only, TEC and combined TEC+phase stages.
type calibrator struct {
	base

	table   artifact.Table
	exports []losotoExport

	solve map[string]parset.Parset
	apply map[string]parset.Parset
	image command.Command
}

func (c *calibrator) prepare() error {
	n := c.step.Seq
	names := dpppTemplates[c.step.Type]
	c.solve = make(map[string]parset.Parset, len(c.mss))
	c.apply = make(map[string]parset.Parset, len(c.mss))
	for _, ms := range c.mss {
		solve, err := c.template(names[0])
		if err != nil {
			return err
		}
		apply, err := c.template(names[1])
		if err != nil {
			return err
		}
		h5 := table(ms, c.table, n)
		c.solve[ms] = solve.
			Add("msin", ms).
			Add("ddecal.h5parm", h5).
			Build()
		c.apply[ms] = apply.
			Add("msin", ms).
			Add("applycal.parmdb", h5).
			Add("msout.datacolumn", ColumnCorrected).
			Build()
	}

	img, err := ImagingCommand(c.env, c.dir, imagingColumn(c.step.Type), c.mss)
	if err != nil {
		return err
	}
	c.image = img
	return nil
}

func (c *calibrator) calibrate(ctx context.Context, ms string) error {
	if err := c.dppp(ctx, c.solve[ms]); err != nil {
		return err
	}
	return c.dppp(ctx, c.apply[ms])
}

func (c *calibrator) joint(ctx context.Context) error {
	return c.run(ctx, c.image)
}

func (c *calibrator) finish(ctx context.Context, ms string) error {
	for _, e := range c.exports {
		if err := c.export(ctx, ms, e.template, table(ms, e.table, c.step.Seq), e.prefix); err != nil {
			return err
		}
	}
	return nil
}

// Phase is the phase-only self-calibration stage. Sequence 0 is the
// initial stage, written to the "init" directory.
type Phase struct{ calibrator }

func NewPhase(n int, mss []string, env Env) (*Phase, error) {
	p := &Phase{calibrator{
		table:   artifact.TablePhase,
		exports: []losotoExport{{"lstp.pset", artifact.TablePhase, "phase"}},
	}}
	if err := p.init(model.Step{Type: model.StepPhase, Seq: n}, mss, env, &p.calibrator); err != nil {
		return nil, err
	}
	return p, nil
}

// TEC solves for differential ionospheric delay only.
type TEC struct{ calibrator }

func NewTEC(n int, mss []string, env Env) (*TEC, error) {
	t := &TEC{calibrator{
		table:   artifact.TableTEC,
		exports: []losotoExport{{"lsta.pset", artifact.TableTEC, "tec"}},
	}}
	if err := t.init(model.Step{Type: model.StepTEC, Seq: n}, mss, env, &t.calibrator); err != nil {
		return nil, err
	}
	return t, nil
}

// TECPhase solves for TEC and phase in a single pass.
type TECPhase struct{ calibrator }

func NewTECPhase(n int, mss []string, env Env) (*TECPhase, error) {
	t := &TECPhase{calibrator{
		table:   artifact.TableTECPhase,
		exports: []losotoExport{{"lstp.pset", artifact.TableTECPhase, "tecphase"}},
	}}
	if err := t.init(model.Step{Type: model.StepTECPhase, Seq: n}, mss, env, &t.calibrator); err != nil {
		return nil, err
	}
	return t, nil
}
