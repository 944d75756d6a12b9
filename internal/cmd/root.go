// Package cmd implements the selfcal command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/msageha/selfcal/internal/config"
	"github.com/msageha/selfcal/internal/logging"
	"github.com/msageha/selfcal/internal/model"
)

// stderrFormatter is implemented by errors that render their own
// user-facing message.
type stderrFormatter interface {
	FormatStderr() string
}

// app carries what every subcommand shares.
type app struct {
	version    string
	configFile string
	logLevel   string

	cfg    model.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// level is --log-level when given, else the configured level.
func (a *app) level() string {
	if a.logLevel != "" {
		return a.logLevel
	}
	return a.cfg.Logging.Level
}

func (a *app) logger() *logging.Logger {
	return logging.New(a.stderr, a.level())
}

// skipConfig marks commands that must work without a valid configuration.
const skipConfig = "skip-config"

// NewRootCmd builds the command tree. in, out and errOut default to the
// process streams when nil.
func NewRootCmd(version string, in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{version: version, stdin: in, stdout: out, stderr: errOut}
	if a.stdin == nil {
		a.stdin = os.Stdin
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}

	root := &cobra.Command{
		Use:   "selfcal",
		Short: "Self-calibration pipeline runner for radio interferometry",
		Long: `selfcal runs a string of reduction steps (phase, diagonal, TEC,
TEC+phase, phase-up, predict) over one or more measurement sets by driving
DPPP, wsclean, losoto and makesourcedb. Every command it issues is recorded
in a run journal inside the results directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				a.cfg = model.DefaultConfig()
				return nil
			}
			cfg, err := config.LoadFile(a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default is ./"+config.FileName+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug/info/warn/error)")

	root.AddCommand(
		newRunCmd(a),
		newBatchCmd(a),
		newStepsCmd(a),
		newJournalCmd(a),
		newQualityCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(version string) int {
	root := NewRootCmd(version, nil, nil, nil)
	if err := root.Execute(); err != nil {
		printError(os.Stderr, err)
		return 1
	}
	return 0
}

func printError(w io.Writer, err error) {
	var f stderrFormatter
	if errors.As(err, &f) {
		fmt.Fprint(w, f.FormatStderr())
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}
