package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/command"
	"github.com/msageha/selfcal/internal/events"
	"github.com/msageha/selfcal/internal/journal"
	"github.com/msageha/selfcal/internal/lock"
	"github.com/msageha/selfcal/internal/logging"
	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/internal/quality"
	"github.com/msageha/selfcal/internal/stage"
)

// LastEditLayout formats the journal's last_edit attribute.
const LastEditLayout = "2006_01_02_15_04"

// Journal attribute keys written at the end of a run.
const (
	AttrMS       = "ms"
	AttrLastEdit = "last_edit"
	AttrSteps    = "steps"
)

// Options describe one pipeline run.
type Options struct {
	Steps     string
	MS        string
	MultiMS   bool
	Results   string
	Model     string
	Debug     bool
	AssumeYes bool
	InitPhase bool
}

// ConfirmFunc asks whether a run containing a phase-up may proceed.
type ConfirmFunc func(steps []model.Step) (bool, error)

// Result summarises a finished run.
type Result struct {
	RunID   string
	Steps   []model.Step
	Sets    []string
	Quality []quality.Record
}

// Sequencer runs the stages of one step string over the selected
// measurement sets.
type Sequencer struct {
	cfg     model.Config
	opts    Options
	runner  command.Runner
	confirm ConfirmFunc
	log     *logging.Logger
	fileLog bool
	fileLvl string
	events  *events.Bus
	now     func() time.Time
}

type Option func(*Sequencer)

// WithRunner replaces the process runner used outside debug mode. The
// journal still records every command.
func WithRunner(r command.Runner) Option {
	return func(s *Sequencer) { s.runner = r }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Sequencer) { s.log = l }
}

func WithConfirm(fn ConfirmFunc) Option {
	return func(s *Sequencer) { s.confirm = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithEvents publishes stage transitions on bus.
func WithEvents(bus *events.Bus) Option {
	return func(s *Sequencer) { s.events = bus }
}

// WithFileLogging sends the run's logging to cfg.Logging.File once the
// results directory exists. Relative paths are resolved against it. An
// empty level falls back to cfg.Logging.Level.
func WithFileLogging(level string) Option {
	return func(s *Sequencer) {
		s.fileLog = true
		s.fileLvl = level
	}
}

func NewSequencer(cfg model.Config, opts Options, options ...Option) *Sequencer {
	s := &Sequencer{
		cfg:     cfg,
		opts:    opts,
		confirm: PromptConfirm(os.Stdin, os.Stderr),
		log:     logging.Nop(),
		now:     time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// PhaseUpWarning is shown before a run that rewrites measurement sets.
const PhaseUpWarning = "The phase-up step replaces each measurement set with its baseline-combined version.\n" +
	"Make sure a copy of the original data exists."

// PromptConfirm writes the phase-up warning to out and accepts the run
// only if the next line read from in is "ok".
func PromptConfirm(in io.Reader, out io.Writer) ConfirmFunc {
	return func([]model.Step) (bool, error) {
		if _, err := fmt.Fprintf(out, "%s\nType 'ok' to continue: ", PhaseUpWarning); err != nil {
			return false, err
		}
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("read confirmation: %w", err)
		}
		return strings.TrimSpace(line) == "ok", nil
	}
}

// Run executes the configured steps. Nothing is created on disk and no
// command is issued before the step string, the confirmation gate, the
// model precondition and the stage inputs have been checked.
func (s *Sequencer) Run(ctx context.Context) (*Result, error) {
	log := s.log.Component("pipeline")

	steps, err := ParseSteps(s.opts.Steps, ParseOptions{InitPhase: s.opts.InitPhase})
	if err != nil {
		return nil, err
	}

	if Contains(steps, model.StepPhaseUp) && !s.opts.AssumeYes {
		ok, err := s.confirm(steps)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Warnf("phase-up declined steps=%s", s.opts.Steps)
			return nil, ErrAborted
		}
	}

	if NeedsModel(steps) {
		if s.opts.Model == "" {
			return nil, preconditionf("steps %q need a sky model; pass one with -m", s.opts.Steps)
		}
		if !artifact.Exists(s.opts.Model) {
			return nil, preconditionf("sky model %s does not exist", s.opts.Model)
		}
	}

	sets, err := ExpandMeasurementSets(s.opts.MS, s.opts.MultiMS)
	if err != nil {
		return nil, err
	}
	if s.opts.Results == "" {
		return nil, preconditionf("no results directory given")
	}
	if err := stage.Validate(steps, s.env(nil, "", s.log)); err != nil {
		return nil, err
	}
	if err := artifact.EnsureDir(s.opts.Results); err != nil {
		return nil, err
	}
	runLog := s.log
	if s.fileLog {
		fileLog, err := s.openFileLog()
		if err != nil {
			return nil, err
		}
		defer func() { _ = fileLog.Close() }()
		runLog = fileLog
		log = fileLog.Component("pipeline")
	}

	fl := lock.NewFileLock(filepath.Join(s.opts.Results, s.cfg.Pipeline.LockFile))
	if err := fl.TryLock(); err != nil {
		return nil, err
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			log.Warnf("unlock path=%s error=%v", fl.Path(), err)
		}
	}()

	j, err := journal.Open(filepath.Join(s.opts.Results, s.cfg.Pipeline.Journal),
		journal.WithLogger(runLog), journal.WithClock(s.now))
	if err != nil {
		return nil, err
	}

	runner := s.selectRunner(j, runLog)
	log.Infof("run_start run_id=%s steps=%s sets=%d debug=%t", j.RunID(), s.opts.Steps, len(sets), s.opts.Debug)

	res := &Result{RunID: j.RunID(), Steps: steps, Sets: sets}
	runErr := s.runSteps(ctx, steps, sets, runner, runLog)
	if runErr == nil && !s.opts.Debug {
		rep := quality.NewReporter(s.cfg.Quality, s.opts.Results, j, runLog)
		res.Quality, runErr = rep.Run(steps)
	}

	j.Set(AttrMS, s.opts.MS)
	j.Set(AttrLastEdit, s.now().Format(LastEditLayout))
	j.Set(AttrSteps, s.opts.Steps)
	if err := j.Persist(); err != nil {
		return nil, errors.Join(runErr, err)
	}
	if runErr != nil {
		log.Errorf("run_failed run_id=%s error=%v", j.RunID(), runErr)
		return nil, runErr
	}

	log.Infof("run_done run_id=%s calls=%d", j.RunID(), j.Calls())
	s.events.Publish(events.Event{Type: events.RunFinished, Time: s.now()})
	return res, nil
}

func (s *Sequencer) openFileLog() (*logging.Logger, error) {
	path := s.cfg.Logging.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.opts.Results, path)
	}
	level := s.fileLvl
	if level == "" {
		level = s.cfg.Logging.Level
	}
	return logging.NewFile(path, level)
}

func (s *Sequencer) selectRunner(j *journal.Journal, log *logging.Logger) command.Runner {
	if s.opts.Debug {
		return &command.TraceRunner{Path: filepath.Join(s.opts.Results, s.cfg.Pipeline.Trace)}
	}
	next := s.runner
	if next == nil {
		next = &command.ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr, Log: log.Component("exec")}
	}
	return &command.JournalRunner{Journal: j, Next: next}
}

func (s *Sequencer) env(runner command.Runner, prior string, log *logging.Logger) stage.Env {
	return stage.Env{
		Tools:     s.cfg.Tools,
		Imaging:   s.cfg.Imaging,
		Diagonal:  s.cfg.Diagonal,
		ParsetDir: s.cfg.Parsets.Dir,
		Results:   s.opts.Results,
		Model:     s.opts.Model,
		PriorDir:  prior,
		Runner:    runner,
		Log:       log,
	}
}

func (s *Sequencer) runSteps(ctx context.Context, steps []model.Step, sets []string, runner command.Runner, runLog *logging.Logger) error {
	log := runLog.Component("pipeline")
	prior := ""
	for _, step := range steps {
		ex, err := stage.New(step, sets, s.env(runner, prior, runLog))
		if err != nil {
			return err
		}
		if err := ex.Initialize(); err != nil {
			return fmt.Errorf("initialize %s: %w", step, err)
		}

		start := s.now()
		log.Infof("step_start step=%s dir=%s", step, ex.Dir())
		s.events.Publish(events.Event{Type: events.StageStarted, Time: start, Step: step, Dir: ex.Dir()})
		err = s.runStep(ctx, ex)
		elapsed := s.now().Sub(start)
		s.events.Publish(events.Event{Type: events.StageFinished, Time: s.now(), Step: step, Dir: ex.Dir(), Elapsed: elapsed, Err: err})
		if err != nil {
			return fmt.Errorf("step %s: %w", step, err)
		}
		log.Infof("step_done step=%s elapsed=%s", step, elapsed.Round(time.Second))

		if step.Type.Images() {
			prior = ex.Dir()
		}
	}
	return nil
}

// runStep pools Calibrate over the sets, runs Joint once after the
// barrier, then pools Finish.
func (s *Sequencer) runStep(ctx context.Context, ex stage.Executor) error {
	if err := s.pool(ctx, ex, ex.Calibrate); err != nil {
		return err
	}
	if err := ex.Joint(ctx); err != nil {
		return err
	}
	return s.pool(ctx, ex, ex.Finish)
}

func (s *Sequencer) pool(ctx context.Context, ex stage.Executor, fn func(context.Context, string) error) error {
	limit := s.cfg.Pipeline.Workers
	if limit < 1 || ex.Sequential() {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, ms := range ex.Sets() {
		g.Go(func() error { return fn(gctx, ms) })
	}
	return g.Wait()
}
