package stage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/command"
	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/internal/parset"
)

// ModelKind is the format of a sky model file.
type ModelKind int

const (
	ModelFITS     ModelKind = iota + 1 // image-domain model, predicted by the imager
	ModelSkyModel                      // text catalogue, converted to a source database first
	ModelSourceDB                      // source database, predicted directly
)

func (k ModelKind) String() string {
	switch k {
	case ModelFITS:
		return "fits"
	case ModelSkyModel:
		return "skymodel"
	case ModelSourceDB:
		return "sourcedb"
	}
	return "unknown"
}

// ModelFormatError reports a model path with an unrecognised extension.
type ModelFormatError struct {
	Path string
}

func (e *ModelFormatError) Error() string {
	return fmt.Sprintf("model %q is in a non-recognized format (want .fits, .skymodel or .sourcedb)", e.Path)
}

// ClassifyModel returns the kind of model at path and the path without its
// extension.
func ClassifyModel(path string) (ModelKind, string, error) {
	for ext, kind := range map[string]ModelKind{
		".fits":     ModelFITS,
		".skymodel": ModelSkyModel,
		".sourcedb": ModelSourceDB,
	} {
		if strings.HasSuffix(path, ext) {
			return kind, strings.TrimSuffix(path, ext), nil
		}
	}
	return 0, "", &ModelFormatError{Path: path}
}

// modelPredictor predicts a user-supplied model into measurement sets.
type modelPredictor struct {
	b    *base
	kind ModelKind
	stem string
	dppp map[string]parset.Parset

	mu    sync.Mutex
	built bool
}

func (b *base) newModelPredictor(path string) (*modelPredictor, error) {
	kind, stem, err := ClassifyModel(path)
	if err != nil {
		return nil, err
	}
	if err := artifact.Require(path, "sky model"); err != nil {
		return nil, err
	}

	p := &modelPredictor{b: b, kind: kind, stem: stem}
	if kind == ModelFITS {
		return p, nil
	}
	p.dppp = make(map[string]parset.Parset, len(b.mss))
	for _, ms := range b.mss {
		tmpl, err := b.template(predictTemplate)
		if err != nil {
			return nil, err
		}
		p.dppp[ms] = tmpl.
			Add("msin", ms).
			Add("predict.sourcedb", stem+".sourcedb").
			Build()
	}
	return p, nil
}

// buildSourceDB converts a .skymodel into a source database once per
// executor. Other kinds need no preparation.
func (p *modelPredictor) buildSourceDB(ctx context.Context) error {
	if p.kind != ModelSkyModel {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.built {
		return nil
	}
	c := command.New(p.b.env.Tools.MakeSourceDB,
		"in="+p.stem+".skymodel",
		"out="+p.stem+".sourcedb",
	)
	if err := p.b.run(ctx, c); err != nil {
		return err
	}
	p.built = true
	return nil
}

func (p *modelPredictor) predict(ctx context.Context, ms string) error {
	if p.kind == ModelFITS {
		return p.b.run(ctx, command.New(p.b.env.Tools.WSClean, "-predict", "-name", p.stem, ms))
	}
	return p.b.dppp(ctx, p.dppp[ms])
}

// Predict fills the model column of every measurement set from the
// user-supplied model.
type Predict struct {
	base
	model *modelPredictor
}

func NewPredict(n int, mss []string, env Env) (*Predict, error) {
	p := &Predict{}
	if err := p.init(model.Step{Type: model.StepPredict, Seq: n}, mss, env, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Predict) prepare() error {
	m, err := p.newModelPredictor(p.env.Model)
	if err != nil {
		return err
	}
	p.model = m
	p.log.Infof("predict_model kind=%s path=%s", m.kind, p.env.Model)
	return nil
}

func (p *Predict) calibrate(context.Context, string) error { return nil }

func (p *Predict) joint(ctx context.Context) error {
	return p.model.buildSourceDB(ctx)
}

func (p *Predict) finish(ctx context.Context, ms string) error {
	return p.model.predict(ctx, ms)
}
