package quality

import (
	"errors"
	"math"

	"github.com/msageha/selfcal/internal/fitsimg"
	"github.com/msageha/selfcal/internal/model"
)

// Aperture is the circular pixel region the noise estimate is taken from.
// A pixel (x, y) is inside when (x-CenterX)^2 + (y-CenterY)^2 < Radius^2.
type Aperture struct {
	CenterX int
	CenterY int
	Radius  int
}

// ApertureFromConfig returns the aperture configured under quality.
func ApertureFromConfig(cfg model.QualityConfig) Aperture {
	return Aperture{CenterX: cfg.CenterX, CenterY: cfg.CenterY, Radius: cfg.Radius}
}

func (a Aperture) contains(x, y int) bool {
	dx, dy := x-a.CenterX, y-a.CenterY
	return dx*dx+dy*dy < a.Radius*a.Radius
}

// ErrEmptyAperture is returned when no pixel of the image falls inside the
// aperture.
var ErrEmptyAperture = errors.New("quality: aperture selects no pixels")

// Metrics are the per-image figures of merit. The beam-derived fields are
// left zero when the image header lacks the restoring beam or the spectral
// axis.
type Metrics struct {
	RMS    float64 `yaml:"rms"`
	MaxMin float64 `yaml:"max_min"`
	SNR    float64 `yaml:"snr"`

	Frequency float64 `yaml:"frequency_hz,omitempty"`
	BeamArea  float64 `yaml:"beam_area_px,omitempty"`
	// Flux is the sum of the first plane divided by the beam area, in Jy
	// for an image in Jy/beam.
	Flux float64 `yaml:"flux_jy,omitempty"`
}

// RMS is the root mean square of the pixels inside ap.
func RMS(img *fitsimg.Image, ap Aperture) (float64, error) {
	w, h := img.Width(), img.Height()
	var sum float64
	var n int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !ap.contains(x, y) {
				continue
			}
			v := img.At(x, y)
			sum += v * v
			n++
		}
	}
	if n == 0 {
		return 0, ErrEmptyAperture
	}
	return math.Sqrt(sum / float64(n)), nil
}

// extrema returns the maximum and minimum of the first plane.
func extrema(img *fitsimg.Image) (hi, lo float64) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, v := range img.Plane() {
		hi = math.Max(hi, v)
		lo = math.Min(lo, v)
	}
	return hi, lo
}

// ratio divides and maps a zero denominator to +Inf.
func ratio(num, den float64) float64 {
	if den == 0 {
		return math.Inf(1)
	}
	return num / den
}

// Measure computes all metrics of img. The dynamic range is reported as
// max/|min| so deep negative bowls read as a small, positive number.
func Measure(img *fitsimg.Image, ap Aperture) (Metrics, error) {
	rms, err := RMS(img, ap)
	if err != nil {
		return Metrics{}, err
	}
	hi, lo := extrema(img)
	m := Metrics{
		RMS:    rms,
		MaxMin: ratio(hi, math.Abs(lo)),
		SNR:    ratio(hi, rms),
	}
	if freq, ok := img.Frequency(); ok {
		m.Frequency = freq
	}
	if area, ok := img.BeamArea(); ok && area > 0 {
		m.BeamArea = area
		m.Flux = IntegratedFlux(img, area)
	}
	return m, nil
}

// IntegratedFlux sums the first plane and converts it from per-beam to
// total flux.
func IntegratedFlux(img *fitsimg.Image, beamArea float64) float64 {
	var sum float64
	for _, v := range img.Plane() {
		sum += v
	}
	return sum / beamArea
}
