// Package stage implements one executor per reduction-step type. Every
// executor builds its parsets and artifact directory in Initialize and then
// drives the external tools in a fixed, type-specific order.
package stage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/command"
	"github.com/msageha/selfcal/internal/logging"
	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/internal/parset"
)

// State is the lifecycle position of an executor.
type State int

const (
	Uninitialized State = iota
	Initialized
	Executed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Executed:
		return "executed"
	default:
		return "uninitialized"
	}
}

var ErrNotInitialized = errors.New("stage: executor not initialized")

// Env is everything an executor needs from the surrounding run.
type Env struct {
	Tools     model.ToolsConfig
	Imaging   model.ImagingConfig
	Diagonal  model.DiagonalConfig
	ParsetDir string
	Results   string
	// Model is the user-supplied sky model (.fits, .skymodel or .sourcedb).
	Model string
	// PriorDir is the directory of the most recent image-producing stage
	// before this one, used by phase-up to predict the newest model.
	PriorDir string
	Runner   command.Runner
	Log      *logging.Logger
}

// Executor runs one reduction step over a set of measurement sets.
//
// Calibrate covers the per-set sub-steps before the joint step, Joint the
// steps that operate on all sets at once, and Finish the per-set sub-steps
// after it. Execute runs all three in order for every set.
type Executor interface {
	Step() model.Step
	Dir() string
	Sets() []string
	// Sequential reports whether sets must be processed one at a time.
	Sequential() bool
	State() State

	Initialize() error
	Calibrate(ctx context.Context, ms string) error
	Joint(ctx context.Context) error
	Finish(ctx context.Context, ms string) error
	Execute(ctx context.Context) error
}

// NumberingError reports a sequence number the step type does not allow.
type NumberingError struct {
	Step model.Step
}

func (e *NumberingError) Error() string {
	return fmt.Sprintf("stage %s: sequence number %d not allowed (must be >= 1; only phase stages may use 0)",
		e.Step.Type, e.Step.Seq)
}

// New returns the executor for step over mss.
func New(step model.Step, mss []string, env Env) (Executor, error) {
	switch step.Type {
	case model.StepPhase:
		return NewPhase(step.Seq, mss, env)
	case model.StepDiagonal:
		return NewDiagonal(step.Seq, mss, env)
	case model.StepTEC:
		return NewTEC(step.Seq, mss, env)
	case model.StepTECPhase:
		return NewTECPhase(step.Seq, mss, env)
	case model.StepPhaseUp:
		return NewPhaseUp(step.Seq, mss, env)
	case model.StepPredict:
		return NewPredict(step.Seq, mss, env)
	}
	return nil, fmt.Errorf("stage: unknown step type %q", byte(step.Type))
}

type hooks interface {
	prepare() error
	calibrate(ctx context.Context, ms string) error
	joint(ctx context.Context) error
	finish(ctx context.Context, ms string) error
}

type base struct {
	env   Env
	step  model.Step
	dir   string
	mss   []string
	log   *logging.Logger
	hooks hooks

	mu       sync.Mutex
	state    State
	finished map[string]bool
}

func (b *base) init(step model.Step, mss []string, env Env, h hooks) error {
	if step.Seq < 0 || (step.Seq == 0 && step.Type != model.StepPhase) {
		return &NumberingError{Step: step}
	}
	if len(mss) == 0 {
		return fmt.Errorf("stage %s: no measurement sets", step)
	}
	if env.Log == nil {
		env.Log = logging.Nop()
	}
	b.env = env
	b.step = step
	b.dir = artifact.StageDir(step)
	b.mss = make([]string, len(mss))
	for i, ms := range mss {
		b.mss[i] = filepath.Clean(ms)
	}
	b.log = env.Log.Component("stage")
	b.hooks = h
	b.finished = make(map[string]bool)
	return nil
}

func (b *base) Step() model.Step { return b.step }
func (b *base) Dir() string      { return b.dir }
func (b *base) Sets() []string   { return append([]string(nil), b.mss...) }
func (b *base) Sequential() bool { return false }

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) stageDir() string {
	return filepath.Join(b.env.Results, b.dir)
}

func (b *base) Initialize() error {
	if err := b.hooks.prepare(); err != nil {
		return err
	}
	if b.dir != "" {
		if err := artifact.EnsureDir(b.stageDir()); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.state = Initialized
	b.mu.Unlock()
	b.log.Infof("stage_initialized step=%s dir=%s sets=%d", b.step, b.dir, len(b.mss))
	return nil
}

func (b *base) ready(ms string) error {
	if b.State() == Uninitialized {
		return ErrNotInitialized
	}
	if ms == "" {
		return nil
	}
	for _, m := range b.mss {
		if m == filepath.Clean(ms) {
			return nil
		}
	}
	return fmt.Errorf("stage %s: unknown measurement set %s", b.step, ms)
}

func (b *base) Calibrate(ctx context.Context, ms string) error {
	if err := b.ready(ms); err != nil {
		return err
	}
	return b.hooks.calibrate(ctx, filepath.Clean(ms))
}

func (b *base) Joint(ctx context.Context) error {
	if err := b.ready(""); err != nil {
		return err
	}
	return b.hooks.joint(ctx)
}

func (b *base) Finish(ctx context.Context, ms string) error {
	if err := b.ready(ms); err != nil {
		return err
	}
	ms = filepath.Clean(ms)
	if err := b.hooks.finish(ctx, ms); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished[ms] = true
	if len(b.finished) == len(b.mss) {
		b.state = Executed
		b.log.Infof("stage_executed step=%s dir=%s", b.step, b.dir)
	}
	return nil
}

func (b *base) Execute(ctx context.Context) error {
	for _, ms := range b.mss {
		if err := b.Calibrate(ctx, ms); err != nil {
			return err
		}
	}
	if err := b.Joint(ctx); err != nil {
		return err
	}
	for _, ms := range b.mss {
		if err := b.Finish(ctx, ms); err != nil {
			return err
		}
	}
	return nil
}

// run issues c through the configured runner.
func (b *base) run(ctx context.Context, c command.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Debugf("run step=%s cmd=%s", b.step, c.Name)
	return b.env.Runner.Run(ctx, c)
}

func (b *base) dppp(ctx context.Context, p parset.Parset) error {
	return b.run(ctx, command.New(b.env.Tools.DPPP, p.Args()...))
}

func (b *base) dryRun() bool {
	return b.env.Runner.DryRun()
}

// template parses a parset template from the parset directory.
func (b *base) template(name string) (*parset.Builder, error) {
	return parset.Parse(filepath.Join(b.env.ParsetDir, name))
}

// table returns the path of a solution table inside ms.
func table(ms string, t artifact.Table, n int) string {
	return filepath.Join(ms, artifact.SolutionTable(t, n))
}
