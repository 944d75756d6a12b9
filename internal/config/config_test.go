package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/templates"
)

func TestLoadFile_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestLoadFile_SearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("pipeline:\n  workers: 5\n"), 0644))

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Pipeline.Workers)
	assert.Equal(t, "wsclean", cfg.Tools.WSClean)
}

func TestLoadFile_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := "tools:\n  dppp: DP3\nquality:\n  radius: 12\ndiagonal:\n  suppress_negative: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DP3", cfg.Tools.DPPP)
	assert.Equal(t, 12, cfg.Quality.Radius)
	assert.False(t, cfg.Diagonal.SuppressNegative)
	assert.Equal(t, 40, cfg.Quality.CenterX)
}

func TestLoadFile_MissingExplicitFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFile_EnvironmentOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SELFCAL_PIPELINE_WORKERS", "7")
	t.Setenv("SELFCAL_TOOLS_WSCLEAN", "/opt/wsclean/bin/wsclean")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.Workers)
	assert.Equal(t, "/opt/wsclean/bin/wsclean", cfg.Tools.WSClean)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := "pipeline:\n  workers: 0\nlogging:\n  level: loud\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadFile(path)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 2)
	assert.Equal(t, "pipeline.workers", verrs[0].Field)
	assert.Equal(t, "logging.level", verrs[1].Field)
}

func TestTemplateMatchesDefaults(t *testing.T) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestValidate_Defaults(t *testing.T) {
	assert.Empty(t, Validate(model.DefaultConfig()))
}
