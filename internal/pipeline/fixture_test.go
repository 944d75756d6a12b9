package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msageha/selfcal/internal/command"
	"github.com/msageha/selfcal/internal/fitsimg"
	"github.com/msageha/selfcal/internal/logging"
	"github.com/msageha/selfcal/internal/model"
)

// toolSim stands in for the external tools: it records every command and
// writes the files the real tools would leave behind.
type toolSim struct {
	t    *testing.T
	mu   sync.Mutex
	cmds []command.Command
	fail func(command.Command) error
}

func (s *toolSim) DryRun() bool { return false }

func (s *toolSim) Run(_ context.Context, c command.Command) error {
	s.mu.Lock()
	s.cmds = append(s.cmds, c)
	s.mu.Unlock()

	if s.fail != nil {
		if err := s.fail(c); err != nil {
			return err
		}
	}
	switch {
	case c.Name == "wsclean" && len(c.Args) > 0 && c.Args[0] != "-predict":
		name := argAfter(c, "-name")
		require.NotEmpty(s.t, name)
		data := make([]float64, 81*81)
		for i := range data {
			data[i] = 0.01
		}
		data[0] = 1
		img := fitsimg.New([]int{81, 81, 1, 1}, data, nil)
		require.NoError(s.t, img.Write(name+"-image.fits"))
		require.NoError(s.t, img.Write(name+"-model.fits"))
	case c.Name == "DPPP":
		for _, a := range c.Args {
			if out, ok := strings.CutPrefix(a, "msout="); ok {
				require.NoError(s.t, os.MkdirAll(out, 0755))
			}
		}
	}
	return nil
}

func (s *toolSim) commands() []command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]command.Command(nil), s.cmds...)
}

func (s *toolSim) kinds() []string {
	var out []string
	for _, c := range s.commands() {
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
	case "wsclean":
		if c.Args[0] == "-predict" {
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

func argAfter(c command.Command, flag string) string {
	for i, a := range c.Args {
		if a == flag && i+1 < len(c.Args) {
			return c.Args[i+1]
		}
	}
	return ""
}

type fixture struct {
	root    string
	results string
	ms      string
	cfg     model.Config
	sim     *toolSim
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:    root,
		results: filepath.Join(root, "results"),
		ms:      filepath.Join(root, "L1.ms"),
		cfg:     model.DefaultConfig(),
		sim:     &toolSim{t: t},
	}
	parsets := filepath.Join(root, "parsets")
	f.cfg.Parsets.Dir = parsets
	require.NoError(t, os.MkdirAll(parsets, 0755))
	require.NoError(t, os.MkdirAll(f.ms, 0755))

	for _, name := range []string{
		"ddecal_init.pset", "acal_init.pset",
		"ddecal_ampself.pset", "acal_ampself.pset",
		"ddecal_teconly.pset", "acal_teconly.pset",
		"ddecal_tecphase.pset", "acal_tecphase.pset",
		"ddecal_prephase.pset", "acal_prephase.pset",
		"ddecal_phaseup_diag.pset", "acal_phaseup_diag.pset",
		"phaseup.pset", "predict.pset",
	} {
		writeFile(t, filepath.Join(parsets, name), "steps = [step]\n")
	}
	for _, name := range []string{"lstp.pset", "lsta.pset", "lsslow.pset"} {
		writeFile(t, filepath.Join(parsets, name), "[plot]\noperation = PLOT\nprefix = placeholder\n")
	}
	writeFile(t, filepath.Join(parsets, "imaging.sh"), "wsclean -size 81 81 \\\n")
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (f *fixture) model(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	writeFile(t, path, "")
	return path
}

func (f *fixture) sequencer(opts Options, extra ...Option) *Sequencer {
	if opts.MS == "" {
		opts.MS = f.ms
	}
	if opts.Results == "" {
		opts.Results = f.results
	}
	options := append([]Option{
		WithRunner(f.sim),
		WithLogger(logging.Nop()),
		WithConfirm(func([]model.Step) (bool, error) { return true, nil }),
	}, extra...)
	return NewSequencer(f.cfg, opts, options...)
}
