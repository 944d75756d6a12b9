package parset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ddecal_init.pset")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParse_StripsAndKeepsOrder(t *testing.T) {
	path := writeTemplate(t, "steps = [ddecal]\n\n  ddecal.mode = scalarphase  \nmsin.datacolumn = DATA\nddecal.solint=4\n")

	b, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"steps=[ddecal]",
		"ddecal.mode=scalarphase",
		"msin.datacolumn=DATA",
		"ddecal.solint=4",
	}, b.Build().Options())
}

func TestParse_ForbiddenKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
		line    int
	}{
		{"h5parm", "steps=[ddecal]\nddecal.h5parm = x.h5\n", "h5parm", 2},
		{"msin spaced", "msin = my.ms\n", "msin", 1},
		{"msin compact", "\nmsin=my.ms\n", "msin", 2},
		{"msout column", "msout.datacolumn = CORRECTED_DATA\n", "msout.datacolumn", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemplate(t, tt.content)
			_, err := Parse(path)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.key, cfgErr.Key)
			assert.Equal(t, tt.line, cfgErr.Line)
			assert.Equal(t, path, cfgErr.Path)
		})
	}
}

func TestParse_MissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.pset"))
	assert.Error(t, err)
}

func TestBuilder_InjectedKeysFollowTemplate(t *testing.T) {
	path := writeTemplate(t, "steps=[applycal]\n")
	b, err := Parse(path)
	require.NoError(t, err)

	b.Add("msin", "L1.ms").Add("applycal.parmdb", "L1.ms/instrument_1.h5")
	p := b.Build()
	b.Add("msout.datacolumn", "CORRECTED_DATA")

	assert.Equal(t, []string{"steps=[applycal]", "msin=L1.ms", "applycal.parmdb=L1.ms/instrument_1.h5"}, p.Args())
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 4, b.Build().Len())
}

func TestParset_OptionsIsCopy(t *testing.T) {
	p := NewBuilder().Add("a", "1").Build()
	opts := p.Options()
	opts[0] = "changed"
	assert.Equal(t, []string{"a=1"}, p.Options())
}

func TestRewritePrefix(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "lstp.pset")
	require.NoError(t, os.WriteFile(tmpl, []byte("[plotphase]\noperation = PLOT\nprefix = placeholder\n"), 0644))

	out := filepath.Join(dir, "pcal1", "losoto", "lstp.pset")
	require.NoError(t, RewritePrefix(tmpl, "results/pcal1/phase", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "[plotphase]\noperation = PLOT\nprefix = results/pcal1/phase\n", string(data))
}
