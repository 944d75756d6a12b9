package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/msageha/selfcal/internal/events"
	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/internal/pipeline"
	"github.com/msageha/selfcal/internal/quality"
)

// ErrNotTerminal is returned when the phase-up confirmation would have to
// be read from a non-interactive stdin.
var ErrNotTerminal = errors.New("phase-up needs confirmation but stdin is not a terminal; pass -y to confirm")

func newRunCmd(a *app) *cobra.Command {
	var opts pipeline.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a string of reduction steps",
		Long: `Run reduction steps over a measurement set.

Each character of the step string is one stage; run 'selfcal steps' for the
list. Stages of the same type are numbered in order of appearance, so
"ppdp" runs pcal1, pcal2, apcal1 and pcal3.

Examples:
  # Two phase-only rounds followed by a diagonal round
  selfcal run -s ppd --ms /data/L123456.ms -p results/

  # Predict a sky model, then phase up, without the confirmation prompt
  selfcal run -s mu --ms /data/L123456.ms -m sky.skymodel -y

  # Print the commands instead of running them
  selfcal run -s pp --ms /data/L123456.ms -d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := events.NewBus(0)
			bus.Subscribe(progressPrinter(a.stderr), events.StageStarted, events.StageFinished)

			seq := pipeline.NewSequencer(a.cfg, opts,
				pipeline.WithLogger(a.logger()),
				pipeline.WithConfirm(terminalConfirm(a.stdin, a.stderr)),
				pipeline.WithFileLogging(a.level()),
				pipeline.WithEvents(bus),
			)
			res, err := seq.Run(ctx)
			bus.Close()
			if err != nil {
				return err
			}
			printRunSummary(a.stdout, opts, res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Steps, "steps", "s", "", "reduction step string, e.g. ppd")
	f.StringVar(&opts.MS, "ms", "", "measurement set (or, with --multims, a directory of them)")
	f.StringVarP(&opts.Results, "results", "p", "results", "results directory")
	f.StringVarP(&opts.Model, "model", "m", "", "sky model (.fits, .skymodel or .sourcedb) for predict and phase-up")
	f.BoolVarP(&opts.Debug, "debug", "d", false, "write commands to the trace file instead of running them")
	f.BoolVarP(&opts.AssumeYes, "yes", "y", false, "do not ask for confirmation before a phase-up")
	f.BoolVar(&opts.MultiMS, "multims", false, "treat --ms as a directory of measurement sets")
	f.BoolVar(&opts.InitPhase, "init", false, "number the first phase stage 0 (directory init)")
	_ = cmd.MarkFlagRequired("steps")
	_ = cmd.MarkFlagRequired("ms")
	return cmd
}

// terminalConfirm shows the phase-up warning and reads the answer. It
// refuses to wait on a stdin that is not a terminal.
func terminalConfirm(in io.Reader, out io.Writer) pipeline.ConfirmFunc {
	return func(steps []model.Step) (bool, error) {
		if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			return false, ErrNotTerminal
		}
		fmt.Fprintln(out, boxStyle.Render(warnStyle.Render("WARNING")+" measurement sets will be modified in place"))
		return pipeline.PromptConfirm(in, out)(steps)
	}
}

// progressPrinter writes one line per stage transition.
func progressPrinter(w io.Writer) events.Subscriber {
	return func(e events.Event) {
		name := e.Dir
		if name == "" {
			name = e.Step.String()
		}
		switch {
		case e.Type == events.StageStarted:
			fmt.Fprintf(w, "%s %s\n", headerStyle.Render(name), mutedStyle.Render("started"))
		case e.Err != nil:
			fmt.Fprintf(w, "%s %s\n", headerStyle.Render(name), warnStyle.Render("failed"))
		default:
			fmt.Fprintf(w, "%s %s\n", headerStyle.Render(name), mutedStyle.Render("done in "+e.Elapsed.Round(time.Second).String()))
		}
	}
}

func printRunSummary(w io.Writer, opts pipeline.Options, res *pipeline.Result) {
	fmt.Fprintf(w, "run %s finished: %d steps over %d measurement set(s)\n", res.RunID, len(res.Steps), len(res.Sets))
	if opts.Debug {
		fmt.Fprintln(w, mutedStyle.Render("debug mode: commands were traced, not run"))
		return
	}
	if len(res.Quality) > 0 {
		fmt.Fprint(w, qualityTable(res.Quality))
	}
}

func qualityTable(records []quality.Record) string {
	rows := make([][]string, len(records))
	for i, r := range records {
		flux := "-"
		if r.BeamArea > 0 {
			flux = fmt.Sprintf("%.4g", r.Flux)
		}
		rows[i] = []string{
			fmt.Sprintf("%02d", r.Index),
			r.Stage,
			fmt.Sprintf("%.4g", r.RMS),
			fmt.Sprintf("%.4g", r.MaxMin),
			fmt.Sprintf("%.4g", r.SNR),
			flux,
		}
	}
	return renderTable([]string{"#", "STAGE", "RMS", "MAX/|MIN|", "SNR", "FLUX"}, rows)
}

// runContext returns the command context or Background when unset.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
