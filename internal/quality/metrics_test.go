package quality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/selfcal/internal/fitsimg"
	"github.com/msageha/selfcal/internal/model"
)

func filled(w, h int, v float64) []float64 {
	data := make([]float64, w*h)
	for i := range data {
		data[i] = v
	}
	return data
}

func TestMeasure(t *testing.T) {
	data := filled(5, 5, 2)
	data[0] = 10     // (0,0), outside the aperture
	data[4*5+4] = -5 // (4,4), outside the aperture
	img := fitsimg.New([]int{5, 5, 1, 1}, data, nil)

	m, err := Measure(img, Aperture{CenterX: 2, CenterY: 2, Radius: 2})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, m.RMS, 1e-12)
	assert.InDelta(t, 2.0, m.MaxMin, 1e-12)
	assert.InDelta(t, 5.0, m.SNR, 1e-12)
}

func TestMeasure_BeamAndFrequency(t *testing.T) {
	data := filled(5, 5, 0.5)
	img := fitsimg.New([]int{5, 5, 1, 1}, data, map[string]float64{
		"BMAJ":   2e-3,
		"BMIN":   1e-3,
		"CDELT2": 5e-4,
		"CRVAL3": 1.4e8,
	})

	m, err := Measure(img, Aperture{CenterX: 2, CenterY: 2, Radius: 2})
	require.NoError(t, err)

	area := math.Pi / (4 * math.Ln2) * 8
	assert.InDelta(t, 1.4e8, m.Frequency, 1e-3)
	assert.InDelta(t, area, m.BeamArea, 1e-9)
	assert.InDelta(t, 12.5/area, m.Flux, 1e-9)
}

func TestMeasure_NoBeam(t *testing.T) {
	img := fitsimg.New([]int{5, 5}, filled(5, 5, 1), map[string]float64{"CDELT2": 1e-3})

	m, err := Measure(img, Aperture{CenterX: 2, CenterY: 2, Radius: 2})
	require.NoError(t, err)
	assert.Zero(t, m.Frequency)
	assert.Zero(t, m.BeamArea)
	assert.Zero(t, m.Flux)
}

func TestRMS_StrictBoundary(t *testing.T) {
	data := filled(5, 5, 100)
	data[2*5+2] = 4
	img := fitsimg.New([]int{5, 5}, data, nil)

	// Radius 1 keeps only the centre pixel; its neighbours sit exactly on
	// the boundary.
	rms, err := RMS(img, Aperture{CenterX: 2, CenterY: 2, Radius: 1})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, rms, 1e-12)
}

func TestRMS_ColumnIsX(t *testing.T) {
	// 6 wide, 3 high: only column 5 is hot.
	data := make([]float64, 6*3)
	for y := 0; y < 3; y++ {
		data[y*6+5] = 3
	}
	img := fitsimg.New([]int{6, 3}, data, nil)

	rms, err := RMS(img, Aperture{CenterX: 5, CenterY: 1, Radius: 1})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, rms, 1e-12)
}

func TestRMS_EmptyAperture(t *testing.T) {
	img := fitsimg.New([]int{4, 4}, filled(4, 4, 1), nil)
	_, err := RMS(img, Aperture{CenterX: 100, CenterY: 100, Radius: 3})
	assert.ErrorIs(t, err, ErrEmptyAperture)
}

func TestMeasure_ZeroMinimum(t *testing.T) {
	data := filled(3, 3, 1)
	data[0] = 0
	img := fitsimg.New([]int{3, 3}, data, nil)

	m, err := Measure(img, Aperture{CenterX: 1, CenterY: 1, Radius: 2})
	require.NoError(t, err)
	assert.True(t, math.IsInf(m.MaxMin, 1))
}

func TestApertureFromConfig_Defaults(t *testing.T) {
	ap := ApertureFromConfig(model.DefaultConfig().Quality)
	assert.Equal(t, Aperture{CenterX: 40, CenterY: 40, Radius: 30}, ap)
}
