package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/selfcal/internal/model"
)

func TestStageDir(t *testing.T) {
	tests := []struct {
		step model.Step
		want string
	}{
		{model.Step{Type: model.StepPhase, Seq: 0}, "init"},
		{model.Step{Type: model.StepPhase, Seq: 2}, "pcal2"},
		{model.Step{Type: model.StepDiagonal, Seq: 3}, "apcal3"},
		{model.Step{Type: model.StepTEC, Seq: 1}, "teccal1"},
		{model.Step{Type: model.StepTECPhase, Seq: 4}, "tpcal4"},
		{model.Step{Type: model.StepPhaseUp, Seq: 1}, "pucal1"},
		{model.Step{Type: model.StepPredict, Seq: 1}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StageDir(tt.step), tt.step.String())
	}
}

func TestSolutionTable(t *testing.T) {
	assert.Equal(t, "instrument.h5", SolutionTable(TablePhase, 0))
	assert.Equal(t, "instrument_2.h5", SolutionTable(TablePhase, 2))
	assert.Equal(t, "instrument_p3.h5", SolutionTable(TableDiagPhase, 3))
	assert.Equal(t, "instrument_a3.h5", SolutionTable(TableDiagAmp, 3))
	assert.Equal(t, "instrument_t1.h5", SolutionTable(TableTEC, 1))
	assert.Equal(t, "instrument_tp5.h5", SolutionTable(TableTECPhase, 5))
	assert.Equal(t, "instrument_up1.h5", SolutionTable(TablePrePhase, 1))
	assert.Equal(t, "instrument_ua1.h5", SolutionTable(TableUpDiag, 1))
}

func TestEnsureDir_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results", "pcal1")

	require.NoError(t, EnsureDir(dir))
	marker := filepath.Join(dir, "ws-image.fits")
	require.NoError(t, os.WriteFile(marker, []byte("keep"), 0644))

	require.NoError(t, EnsureDir(dir))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apcal1")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	assert.Error(t, EnsureDir(path))
}

func TestRequire(t *testing.T) {
	dir := t.TempDir()
	err := Require(filepath.Join(dir, "model.fits"), "model image")

	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "model image", missing.What)

	present := filepath.Join(dir, "present.fits")
	require.NoError(t, os.WriteFile(present, nil, 0644))
	assert.NoError(t, Require(present, "model image"))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.fits")
	dst := filepath.Join(dir, "images", "01_pcal1.fits")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0644))

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestMSName(t *testing.T) {
	assert.Equal(t, "L1234.ms", MSName("/data/L1234.ms/"))
	assert.Equal(t, "L1234.ms", MSName("L1234.ms"))
}
