package stage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msageha/selfcal/internal/command"
	"github.com/msageha/selfcal/internal/model"
)

type recorder struct {
	mu   sync.Mutex
	cmds []command.Command
	dry  bool
	// hook runs for every command, e.g. to create files the tool would write.
	hook func(command.Command) error
}

func (r *recorder) DryRun() bool { return r.dry }

func (r *recorder) Run(_ context.Context, c command.Command) error {
	r.mu.Lock()
	r.cmds = append(r.cmds, c)
	r.mu.Unlock()
	if r.hook != nil {
		return r.hook(c)
	}
	return nil
}

func (r *recorder) commands() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Command(nil), r.cmds...)
}

// kinds summarises each command as its tool name plus a distinguishing
// argument, e.g. "DPPP ddecal" or "wsclean -predict".
func (r *recorder) kinds() []string {
	var out []string
	for _, c := range r.commands() {
		out = append(out, kindOf(c))
	}
	return out
}

func kindOf(c command.Command) string {
	switch c.Name {
	case "DPPP":
		for _, a := range c.Args {
			switch {
			case strings.HasPrefix(a, "ddecal.h5parm="):
				return "DPPP solve"
			case strings.HasPrefix(a, "applycal.parmdb="):
				return "DPPP apply"
			case strings.HasPrefix(a, "predict.sourcedb="):
				return "DPPP predict"
			case strings.HasPrefix(a, "msout="):
				return "DPPP phaseup"
			}
		}
		return "DPPP"
	case "wsclean":
		if len(c.Args) > 0 && c.Args[0] == "-predict" {
			return "wsclean predict"
		}
		return "wsclean image"
	case "losoto":
		if strings.HasPrefix(filepath.Base(c.Args[1]), "reset_") {
			return "losoto reset"
		}
		return "losoto export"
	}
	return c.Name
}

func argWithPrefix(c command.Command, prefix string) string {
	for _, a := range c.Args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return ""
}

type fixture struct {
	root    string
	parsets string
	results string
	ms      string
	rec     *recorder
	env     Env
}

var templates = []string{
	"ddecal_init.pset", "acal_init.pset",
	"ddecal_ampself.pset", "acal_ampself.pset",
	"ddecal_teconly.pset", "acal_teconly.pset",
	"ddecal_tecphase.pset", "acal_tecphase.pset",
	"ddecal_prephase.pset", "acal_prephase.pset",
	"ddecal_phaseup_diag.pset", "acal_phaseup_diag.pset",
	"phaseup.pset", "predict.pset",
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:    root,
		parsets: filepath.Join(root, "parsets"),
		results: filepath.Join(root, "results"),
		ms:      filepath.Join(root, "L1.ms"),
		rec:     &recorder{},
	}
	require.NoError(t, os.MkdirAll(f.parsets, 0755))
	require.NoError(t, os.MkdirAll(f.ms, 0755))

	for _, name := range templates {
		f.write(t, name, "steps = [step]\nnumthreads = 4\n")
	}
	for _, name := range []string{"lstp.pset", "lsta.pset", "lsslow.pset"} {
		f.write(t, name, "[plot]\noperation = PLOT\nprefix = placeholder\n")
	}
	f.write(t, "imaging.sh", "wsclean -size 1024 1024 \\\n  -scale 1asec \\\n")

	cfg := model.DefaultConfig()
	f.env = Env{
		Tools:     cfg.Tools,
		Imaging:   cfg.Imaging,
		Diagonal:  cfg.Diagonal,
		ParsetDir: f.parsets,
		Results:   f.results,
		Runner:    f.rec,
	}
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.parsets, name), []byte(content), 0644))
}

func (f *fixture) mss() []string { return []string{f.ms} }
