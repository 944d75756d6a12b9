package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/msageha/selfcal/internal/journal"
	"github.com/msageha/selfcal/internal/lock"
	"github.com/msageha/selfcal/internal/pipeline"
	"github.com/msageha/selfcal/internal/quality"
)

func newQualityCmd(a *app) *cobra.Command {
	var (
		steps     string
		results   string
		initPhase bool
		show      bool
	)

	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Measure stage images and plot how they improved",
		Long: `Measure the stage images of a finished run.

The step string selects the stage directories in execution order, exactly
as 'selfcal run' named them. For each stage the RMS inside the central
aperture, max/|min| and max/RMS are computed; rms.pdf, maxmin.pdf and
snr.pdf are written to the results directory and each image is archived
under images/. --show prints the last stored report without measuring.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if show {
				records, err := quality.Load(results)
				if err != nil {
					return err
				}
				fmt.Fprint(a.stdout, qualityTable(records))
				return nil
			}

			parsed, err := pipeline.ParseSteps(steps, pipeline.ParseOptions{InitPhase: initPhase})
			if err != nil {
				return err
			}

			if info, err := os.Stat(results); err != nil || !info.IsDir() {
				return fmt.Errorf("%w: %s", errNoResults, results)
			}
			fl := lock.NewFileLock(filepath.Join(results, a.cfg.Pipeline.LockFile))
			if err := fl.TryLock(); err != nil {
				return err
			}
			defer func() { _ = fl.Unlock() }()

			// Records go into the journal only when the run left one.
			var j *journal.Journal
			path := filepath.Join(results, a.cfg.Pipeline.Journal)
			if _, err := os.Stat(path); err == nil {
				if j, err = journal.Open(path, journal.WithLogger(a.logger())); err != nil {
					return err
				}
			}

			var attrs quality.Attributes
			if j != nil {
				attrs = j
			}
			records, err := quality.NewReporter(a.cfg.Quality, results, attrs, a.logger()).Run(parsed)
			if err != nil {
				return err
			}
			if j != nil {
				if err := j.Persist(); err != nil {
					return err
				}
			}
			fmt.Fprint(a.stdout, qualityTable(records))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&steps, "steps", "s", "", "step string of the run")
	f.StringVarP(&results, "results", "p", "results", "results directory")
	f.BoolVar(&initPhase, "init", false, "the run used --init")
	f.BoolVar(&show, "show", false, "print the stored report")
	cmd.MarkFlagsOneRequired("steps", "show")
	return cmd
}

// errNoResults is reported when the results directory does not exist.
var errNoResults = errors.New("results directory does not exist")
