package quality

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/fitsimg"
	"github.com/msageha/selfcal/internal/logging"
	"github.com/msageha/selfcal/internal/model"
)

type attrBag map[string]any

func (a attrBag) Set(key string, value any) { a[key] = value }

func testConfig() model.QualityConfig {
	cfg := model.DefaultConfig().Quality
	cfg.CenterX, cfg.CenterY, cfg.Radius = 4, 4, 3
	return cfg
}

func writeStageImage(t *testing.T, results, dir, name string, noise float64) {
	t.Helper()
	data := filled(9, 9, noise)
	data[0] = 50
	data[80] = -noise
	img := fitsimg.New([]int{9, 9, 1, 1}, data, map[string]float64{"CRVAL3": 1.4e8})
	require.NoError(t, os.MkdirAll(filepath.Join(results, dir), 0755))
	require.NoError(t, img.Write(filepath.Join(results, dir, name)))
}

func steps(codes ...model.Step) []model.Step { return codes }

func TestStageDirs(t *testing.T) {
	got := StageDirs(steps(
		model.Step{Type: model.StepPhase, Seq: 0},
		model.Step{Type: model.StepPhase, Seq: 1},
		model.Step{Type: model.StepPredict, Seq: 1},
		model.Step{Type: model.StepDiagonal, Seq: 1},
		model.Step{Type: model.StepPhaseUp, Seq: 1},
		model.Step{Type: model.StepTEC, Seq: 1},
		model.Step{Type: model.StepTECPhase, Seq: 1},
	))
	assert.Equal(t, []string{"init", "pcal1", "apcal1", "teccal1", "tpcal1"}, got)
}

func TestReporter_Run(t *testing.T) {
	results := t.TempDir()
	writeStageImage(t, results, "pcal1", "ws-image.fits", 2)
	writeStageImage(t, results, "pcal2", "ws-MFS-image.fits", 1)
	writeStageImage(t, results, "apcal1", "ws-image.fits", 0.5)

	attrs := attrBag{}
	r := NewReporter(testConfig(), results, attrs, logging.Nop())
	records, err := r.Run(steps(
		model.Step{Type: model.StepPhase, Seq: 1},
		model.Step{Type: model.StepPhase, Seq: 2},
		model.Step{Type: model.StepDiagonal, Seq: 1},
	))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "pcal1", records[0].Stage)
	assert.Equal(t, "pcal2", records[1].Stage)
	assert.Equal(t, "apcal1", records[2].Stage)
	assert.Equal(t, filepath.Join(results, "pcal2", "ws-MFS-image.fits"), records[1].Source)

	assert.InDelta(t, 2.0, records[0].RMS, 1e-6)
	assert.InDelta(t, 25.0, records[0].SNR, 1e-5)
	assert.InDelta(t, 50.0, records[1].MaxMin, 1e-5)
	assert.InDelta(t, 100.0, records[2].SNR, 1e-4)

	for i, dir := range []string{"00_pcal1", "01_pcal2", "02_apcal1"} {
		want := filepath.Join(results, "images", dir+".fits")
		assert.Equal(t, want, records[i].Archive)
		assert.FileExists(t, want)
	}
	for _, pdf := range []string{"rms.pdf", "maxmin.pdf", "snr.pdf"} {
		assert.FileExists(t, filepath.Join(results, pdf))
	}

	assert.Equal(t, records, attrs[JournalKey])

	loaded, err := Load(results)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestReporter_MissingImage(t *testing.T) {
	results := t.TempDir()
	writeStageImage(t, results, "init", "ws-image.fits", 1)

	r := NewReporter(testConfig(), results, nil, logging.Nop())
	_, err := r.Run(steps(
		model.Step{Type: model.StepPhase, Seq: 0},
		model.Step{Type: model.StepPhase, Seq: 1},
	))

	var missing *artifact.MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, filepath.Join(results, "pcal1", "ws-image.fits"), missing.Path)
	assert.NoFileExists(t, filepath.Join(results, RecordFile))
}

func TestReporter_NoImagingStages(t *testing.T) {
	results := t.TempDir()
	r := NewReporter(testConfig(), results, nil, logging.Nop())

	records, err := r.Run(steps(model.Step{Type: model.StepPredict, Seq: 1}))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoFileExists(t, filepath.Join(results, "rms.pdf"))
}
