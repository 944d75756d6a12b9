package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/msageha/selfcal/internal/pipeline"
)

func newBatchCmd(a *app) *cobra.Command {
	var opts pipeline.BatchOptions

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the same steps independently on every measurement set in a directory",
		Long: `Run one independent pipeline per measurement set found under --root.

Each set gets its own results directory <results>/<set name>, its own
journal and its own lock. Starting a batch confirms any phase-up, so no
prompt is shown. The default step string "mu" predicts the model and then
phases up each set. With --keep-going a failed set does not stop the
others; the command still exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out, err := pipeline.Batch(ctx, a.cfg, opts,
				pipeline.WithLogger(a.logger()),
				pipeline.WithFileLogging(a.level()),
			)
			if out == nil {
				return err
			}
			rows := make([][]string, len(out))
			for i, r := range out {
				status := "ok"
				run := "-"
				if r.Result != nil {
					run = r.Result.RunID
				}
				if r.Err != nil {
					status = warnStyle.Render("failed")
				}
				rows[i] = []string{r.Set, r.Results, run, status}
			}
			fmt.Fprint(a.stdout, renderTable([]string{"SET", "RESULTS", "RUN", "STATUS"}, rows))
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Root, "root", "r", "", "directory containing the measurement sets")
	f.StringVarP(&opts.Results, "results", "p", "results", "root results directory")
	f.StringVarP(&opts.Model, "model", "m", "", "sky model for predict and phase-up")
	f.StringVarP(&opts.Steps, "steps", "s", pipeline.DefaultBatchSteps, "reduction step string")
	f.BoolVarP(&opts.Debug, "debug", "d", false, "write commands to trace files instead of running them")
	f.BoolVarP(&opts.KeepGoing, "keep-going", "k", false, "continue with the other sets when one fails")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}
