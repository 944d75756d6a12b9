package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/command"
	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/internal/parset"
	"github.com/msageha/selfcal/internal/soltab"
)

// PhaseUp calibrates the core stations, combines them into a single
// station and predicts the newest model into the result. The combination
// replaces the input measurement set.
type PhaseUp struct {
	base

	solvePre  map[string]parset.Parset
	applyPre  map[string]parset.Parset
	solveDiag map[string]parset.Parset
	applyDiag map[string]parset.Parset
	combine   map[string]parset.Parset
	model     *modelPredictor
}

func NewPhaseUp(n int, mss []string, env Env) (*PhaseUp, error) {
	p := &PhaseUp{}
	if err := p.init(model.Step{Type: model.StepPhaseUp, Seq: n}, mss, env, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Sequential is true: each combination rewrites a measurement set on disk.
func (p *PhaseUp) Sequential() bool { return true }

func combinedPath(ms string) string { return ms + "_pu" }

func (p *PhaseUp) prepare() error {
	n := p.step.Seq
	p.solvePre = make(map[string]parset.Parset, len(p.mss))
	p.applyPre = make(map[string]parset.Parset, len(p.mss))
	p.solveDiag = make(map[string]parset.Parset, len(p.mss))
	p.applyDiag = make(map[string]parset.Parset, len(p.mss))
	p.combine = make(map[string]parset.Parset, len(p.mss))

	names := dpppTemplates[model.StepPhaseUp]
	for _, ms := range p.mss {
		tmpl := make([]*parset.Builder, len(names))
		for i, name := range names {
			b, err := p.template(name)
			if err != nil {
				return err
			}
			tmpl[i] = b
		}
		pre := table(ms, artifact.TablePrePhase, n)
		diag := table(ms, artifact.TableUpDiag, n)

		p.solvePre[ms] = tmpl[0].
			Add("msin", ms).
			Add("ddecal.h5parm", pre).
			Build()
		p.applyPre[ms] = tmpl[1].
			Add("msin", ms).
			Add("applycal.parmdb", pre).
			Add("msout.datacolumn", ColumnCorrected).
			Build()
		p.solveDiag[ms] = tmpl[2].
			Add("msin", ms).
			Add("msin.datacolumn", ColumnCorrected).
			Add("ddecal.h5parm", diag).
			Build()
		p.applyDiag[ms] = tmpl[3].
			Add("msin", ms).
			Add("msin.datacolumn", ColumnCorrected).
			Add("applycal.parmdb", diag).
			Add("msout.datacolumn", ColumnCorrected).
			Build()
		p.combine[ms] = tmpl[4].
			Add("msin", ms).
			Add("msout", combinedPath(ms)).
			Build()
	}

	if p.priorModel() == "" {
		m, err := p.newModelPredictor(p.env.Model)
		if err != nil {
			return err
		}
		p.model = m
	}
	return nil
}

// priorModel returns the imager name prefix of the most recent stage whose
// model image exists, or "". Multi-frequency runs write ws-MFS-model.fits,
// predicted with the "ws" prefix as well.
func (p *PhaseUp) priorModel() string {
	if p.env.PriorDir == "" {
		return ""
	}
	prefix := filepath.Join(p.env.Results, p.env.PriorDir, "ws")
	for _, suffix := range []string{"-model.fits", "-MFS-model.fits"} {
		if artifact.Exists(prefix + suffix) {
			return prefix
		}
	}
	return ""
}

func (p *PhaseUp) calibrate(ctx context.Context, ms string) error {
	n := p.step.Seq
	losoto := filepath.Join(p.stageDir(), "losoto", artifact.MSName(ms))

	if err := p.dppp(ctx, p.solvePre[ms]); err != nil {
		return err
	}
	if err := p.reset(ctx, table(ms, artifact.TablePrePhase, n), filepath.Join(losoto, "reset_prephase.pset"), soltab.ResetNonCorePhase()); err != nil {
		return err
	}
	if err := p.dppp(ctx, p.applyPre[ms]); err != nil {
		return err
	}
	if err := p.dppp(ctx, p.solveDiag[ms]); err != nil {
		return err
	}
	if err := p.reset(ctx, table(ms, artifact.TableUpDiag, n), filepath.Join(losoto, "reset_diag.pset"), soltab.ResetNonCoreDiagonal()); err != nil {
		return err
	}
	return p.dppp(ctx, p.applyDiag[ms])
}

func (p *PhaseUp) reset(ctx context.Context, h5, parsetPath string, ops []soltab.Reset) error {
	if err := soltab.Write(parsetPath, ops); err != nil {
		return err
	}
	return p.run(ctx, command.New(p.env.Tools.LoSoTo, h5, parsetPath))
}

func (p *PhaseUp) joint(context.Context) error { return nil }

func (p *PhaseUp) finish(ctx context.Context, ms string) error {
	n := p.step.Seq
	if err := p.export(ctx, ms, "lstp.pset", table(ms, artifact.TablePrePhase, n), "prephase"); err != nil {
		return err
	}
	if err := p.export(ctx, ms, "lsta.pset", table(ms, artifact.TableUpDiag, n), "diag"); err != nil {
		return err
	}
	if err := p.dppp(ctx, p.combine[ms]); err != nil {
		return err
	}
	if err := p.replace(ms); err != nil {
		return err
	}
	return p.predict(ctx, ms)
}

// replace moves the combined measurement set over the original.
func (p *PhaseUp) replace(ms string) error {
	if p.dryRun() {
		p.log.Infof("dry_run skip=replace_ms ms=%s", ms)
		return nil
	}
	combined := combinedPath(ms)
	if err := artifact.Require(combined, "phased-up measurement set"); err != nil {
		return err
	}
	if err := os.RemoveAll(ms); err != nil {
		return fmt.Errorf("remove %s: %w", ms, err)
	}
	if err := os.Rename(combined, ms); err != nil {
		return fmt.Errorf("replace %s: %w", ms, err)
	}
	p.log.Warnf("measurement_set_replaced ms=%s", ms)
	return nil
}

func (p *PhaseUp) predict(ctx context.Context, ms string) error {
	if prefix := p.priorModel(); prefix != "" {
		return p.run(ctx, command.New(p.env.Tools.WSClean, "-predict", "-name", prefix, ms))
	}
	if p.model == nil {
		m, err := p.newModelPredictor(p.env.Model)
		if err != nil {
			return err
		}
		p.model = m
	}
	if err := p.model.buildSourceDB(ctx); err != nil {
		return err
	}
	return p.model.predict(ctx, ms)
}
