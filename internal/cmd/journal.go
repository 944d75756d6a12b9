package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/journal"
)

func newJournalCmd(a *app) *cobra.Command {
	var (
		results string
		last    bool
		follow  bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the commands recorded for a results directory",
		Long: `Show the run journal of a results directory.

Without flags the recorded commands and run attributes are listed.
--last prints only the most recent command, which is the one to inspect
after a failed run. --follow streams commands as a running pipeline
records them, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(results, a.cfg.Pipeline.Journal)
			if follow {
				ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return journal.Follow(ctx, path, func(e journal.Entry) {
					printEntry(a.stdout, e)
				})
			}

			if err := artifact.Require(path, "run journal"); err != nil {
				return err
			}
			j, err := journal.Open(path, journal.WithLogger(a.logger()))
			if err != nil {
				return err
			}
			if last {
				c, ok := j.Last()
				if !ok {
					fmt.Fprintln(a.stderr, mutedStyle.Render("journal is empty"))
					return nil
				}
				fmt.Fprintln(a.stdout, c)
				return nil
			}

			fmt.Fprintf(a.stdout, "%s %s  %s %d\n", headerStyle.Render("run"), j.RunID(), headerStyle.Render("calls"), j.Calls())
			for _, e := range j.Entries() {
				printEntry(a.stdout, e)
			}
			printAttrs(a.stdout, j.Attrs())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&results, "results", "p", "results", "results directory")
	f.BoolVar(&last, "last", false, "print only the most recent command")
	f.BoolVarP(&follow, "follow", "f", false, "stream new commands as they are recorded")
	cmd.MarkFlagsMutuallyExclusive("last", "follow")
	return cmd
}

func printEntry(w io.Writer, e journal.Entry) {
	fmt.Fprintf(w, "%s  %s\n", mutedStyle.Render(e.Time.Local().Format(time.DateTime)), e.Command)
}

func printAttrs(w io.Writer, attrs map[string]any) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		// Quality records are shown by 'selfcal quality'.
		if k == "quality" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s = %v\n", headerStyle.Render(k), attrs[k])
	}
}
