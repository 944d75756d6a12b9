package stage

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/command"
	"github.com/msageha/selfcal/internal/fitsimg"
	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/internal/parset"
)

// Diagonal solves phases first and then amplitudes on the phase-corrected
// data, images the result, cleans up the model and predicts it back into
// the measurement sets.
type Diagonal struct {
	base

	solvePhase map[string]parset.Parset
	applyPhase map[string]parset.Parset
	solveAmp   map[string]parset.Parset
	applyAmp   map[string]parset.Parset
	image      command.Command
	predict    command.Command
}

func NewDiagonal(n int, mss []string, env Env) (*Diagonal, error) {
	d := &Diagonal{}
	if err := d.init(model.Step{Type: model.StepDiagonal, Seq: n}, mss, env, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Diagonal) prepare() error {
	n := d.step.Seq
	d.solvePhase = make(map[string]parset.Parset, len(d.mss))
	d.applyPhase = make(map[string]parset.Parset, len(d.mss))
	d.solveAmp = make(map[string]parset.Parset, len(d.mss))
	d.applyAmp = make(map[string]parset.Parset, len(d.mss))

	for _, ms := range d.mss {
		var tmpl [4]*parset.Builder
		for i, name := range dpppTemplates[model.StepDiagonal] {
			b, err := d.template(name)
			if err != nil {
				return err
			}
			tmpl[i] = b
		}
		ph := table(ms, artifact.TableDiagPhase, n)
		amp := table(ms, artifact.TableDiagAmp, n)

		d.solvePhase[ms] = tmpl[0].
			Add("msin", ms).
			Add("ddecal.h5parm", ph).
			Add("msout.datacolumn", ColumnCorrectedPh).
			Build()
		d.applyPhase[ms] = tmpl[1].
			Add("msin", ms).
			Add("applycal.parmdb", ph).
			Add("msout.datacolumn", ColumnCorrectedPh).
			Build()
		d.solveAmp[ms] = tmpl[2].
			Add("msin", ms).
			Add("ddecal.h5parm", amp).
			Add("msin.datacolumn", ColumnCorrectedPh).
			Build()
		d.applyAmp[ms] = tmpl[3].
			Add("msin", ms).
			Add("applycal.parmdb", amp).
			Add("msin.datacolumn", ColumnCorrectedPh).
			Add("msout.datacolumn", ColumnCorrectedDiag).
			Build()
	}

	img, err := ImagingCommand(d.env, d.dir, ColumnCorrectedDiag, d.mss)
	if err != nil {
		return err
	}
	d.image = img
	d.predict = command.New(d.env.Tools.WSClean, "-predict", "-name", filepath.Join(d.stageDir(), "ws")).With(d.mss...)
	return nil
}

func (d *Diagonal) calibrate(ctx context.Context, ms string) error {
	for _, p := range []parset.Parset{d.solvePhase[ms], d.applyPhase[ms], d.solveAmp[ms], d.applyAmp[ms]} {
		if err := d.dppp(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (d *Diagonal) joint(ctx context.Context) error {
	if err := d.run(ctx, d.image); err != nil {
		return err
	}
	if err := d.postProcess(); err != nil {
		return err
	}
	return d.run(ctx, d.predict)
}

func (d *Diagonal) finish(ctx context.Context, ms string) error {
	n := d.step.Seq
	exports := []losotoExport{
		{"lstp.pset", artifact.TableDiagPhase, "prephase"},
		{"lsta.pset", artifact.TableDiagAmp, "amp"},
		{"lsslow.pset", artifact.TableDiagAmp, "slowphase"},
	}
	for _, e := range exports {
		if err := d.export(ctx, ms, e.template, table(ms, e.table, n), e.prefix); err != nil {
			return err
		}
	}
	return nil
}

// postProcess rewrites the imager's model images before they are predicted:
// negative components are clamped to zero and, when a flux scale file is
// configured, every pixel is multiplied by its factor.
func (d *Diagonal) postProcess() error {
	if d.dryRun() {
		d.log.Infof("dry_run skip=model_postprocess dir=%s", d.dir)
		return nil
	}

	models, err := filepath.Glob(filepath.Join(d.stageDir(), "ws-*model*.fits"))
	if err != nil {
		return err
	}
	if len(models) == 0 {
		d.log.Warnf("missing model image dir=%s, skipping post-process", d.stageDir())
		return nil
	}

	scale, haveScale, err := d.fluxScale()
	if err != nil {
		return err
	}
	if !d.env.Diagonal.SuppressNegative && !haveScale {
		return nil
	}

	for _, path := range models {
		img, err := fitsimg.Read(path)
		if err != nil {
			return fmt.Errorf("post-process %s: %w", path, err)
		}
		if d.env.Diagonal.SuppressNegative {
			img.Map(func(v float64) float64 { return math.Max(v, 0) })
		}
		if haveScale {
			img.Map(func(v float64) float64 { return v * scale })
		}
		if err := img.Write(path); err != nil {
			return fmt.Errorf("post-process %s: %w", path, err)
		}
		d.log.Infof("model_postprocessed file=%s suppress_negative=%t scale=%g", path, d.env.Diagonal.SuppressNegative, scale)
	}
	return nil
}

type fluxScaleFile struct {
	Scale float64 `yaml:"scale"`
}

// fluxScale loads the optional flux rescale factor. A configured but absent
// file is reported and ignored.
func (d *Diagonal) fluxScale() (float64, bool, error) {
	path := d.env.Diagonal.FluxScaleFile
	if path == "" {
		return 1, false, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.env.ParsetDir, path)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		d.log.Warnf("%v, skipping flux rescale", &artifact.MissingError{Path: path, What: "flux scale file"})
		return 1, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var f fluxScaleFile
	if err := yamlv3.Unmarshal(data, &f); err != nil {
		return 0, false, fmt.Errorf("parse flux scale %s: %w", path, err)
	}
	if f.Scale <= 0 || math.IsNaN(f.Scale) || math.IsInf(f.Scale, 0) {
		return 0, false, fmt.Errorf("flux scale %s: scale must be a positive number, got %v", path, f.Scale)
	}
	return f.Scale, true, nil
}
