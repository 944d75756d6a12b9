// Package fitsimg reads and rewrites the FITS images produced by the imager.
package fitsimg

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/astrogo/fitsio"
)

// Image is the primary HDU of a FITS file with its pixels held as float64.
// Axes follow FITS order: Axes[0] is the fastest varying (x) axis.
type Image struct {
	Axes   []int
	Bitpix int
	Data   []float64
	cards  []fitsio.Card
}

// structural keys are regenerated by fitsio when writing.
var structural = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "EXTEND": true, "END": true,
	"COMMENT": true, "HISTORY": true, "": true,
}

func isStructural(key string) bool {
	return structural[key] || strings.HasPrefix(key, "NAXIS")
}

// Read loads the primary image of the FITS file at path.
func Read(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	ff, err := fitsio.Open(f)
	if err != nil {
		return nil, fmt.Errorf("fits open %s: %w", path, err)
	}
	defer func() { _ = ff.Close() }()

	hdu, ok := ff.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("fits %s: primary HDU is not an image", path)
	}
	hdr := hdu.Header()

	img := &Image{
		Axes:   append([]int(nil), hdr.Axes()...),
		Bitpix: hdr.Bitpix(),
	}
	if len(img.Axes) < 2 {
		return nil, fmt.Errorf("fits %s: need at least 2 axes, got %d", path, len(img.Axes))
	}
	if img.Data, err = readPixels(hdu); err != nil {
		return nil, fmt.Errorf("fits %s: %w", path, err)
	}
	for _, key := range hdr.Keys() {
		if isStructural(key) {
			continue
		}
		if c := hdr.Get(key); c != nil {
			img.cards = append(img.cards, *c)
		}
	}
	return img, nil
}

func readPixels(hdu fitsio.Image) ([]float64, error) {
	n := 1
	for _, a := range hdu.Header().Axes() {
		n *= a
	}
	switch bitpix := hdu.Header().Bitpix(); bitpix {
	case -64:
		return readAs[float64](hdu, n)
	case -32:
		return readAs[float32](hdu, n)
	case 8:
		return readAs[byte](hdu, n)
	case 16:
		return readAs[int16](hdu, n)
	case 32:
		return readAs[int32](hdu, n)
	case 64:
		return readAs[int64](hdu, n)
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
}

type pixel interface {
	byte | int16 | int32 | int64 | float32 | float64
}

// readAs decodes n pixels of type T. fitsio only resizes the slice within
// its capacity, so it is allocated up front.
func readAs[T pixel](hdu fitsio.Image, n int) ([]float64, error) {
	raw := make([]T, n)
	if err := hdu.Read(&raw); err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// Width and Height are the sizes of the first two axes.
func (img *Image) Width() int  { return img.Axes[0] }
func (img *Image) Height() int { return img.Axes[1] }

// Plane returns the first width*height pixels, i.e. the first frequency
// and polarisation plane of an imager cube.
func (img *Image) Plane() []float64 {
	return img.Data[:img.Width()*img.Height()]
}

// At returns pixel (x, y) of the first plane.
func (img *Image) At(x, y int) float64 {
	return img.Data[y*img.Width()+x]
}

// Map replaces every pixel v with fn(v).
func (img *Image) Map(fn func(float64) float64) {
	for i, v := range img.Data {
		img.Data[i] = fn(v)
	}
}

// Float returns a numeric header value.
func (img *Image) Float(key string) (float64, bool) {
	for _, c := range img.cards {
		if c.Name != key {
			continue
		}
		switch v := c.Value.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
	}
	return 0, false
}

// BeamArea returns the restoring beam area in pixels computed from BMAJ,
// BMIN and CDELT2.
func (img *Image) BeamArea() (float64, bool) {
	bmaj, ok1 := img.Float("BMAJ")
	bmin, ok2 := img.Float("BMIN")
	cdelt, ok3 := img.Float("CDELT2")
	if !ok1 || !ok2 || !ok3 || cdelt == 0 {
		return 0, false
	}
	return math.Pi / (4 * math.Ln2) * bmaj * bmin / (cdelt * cdelt), true
}

// Frequency returns the reference frequency of the spectral axis.
func (img *Image) Frequency() (float64, bool) {
	return img.Float("CRVAL3")
}

// Write stores the image at path as 32-bit floats with the original
// non-structural header cards.
func (img *Image) Write(path string) error {
	data := make([]float32, len(img.Data))
	for i, v := range img.Data {
		data[i] = float32(v)
	}

	hdu := fitsio.NewImage(-32, img.Axes)
	defer func() { _ = hdu.Close() }()
	if len(img.cards) > 0 {
		if err := hdu.Header().Append(img.cards...); err != nil {
			return fmt.Errorf("fits header: %w", err)
		}
	}
	if err := hdu.Write(data); err != nil {
		return fmt.Errorf("fits pixels: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	ff, err := fitsio.Create(f)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("fits create %s: %w", path, err)
	}
	if err := ff.Write(hdu); err != nil {
		_ = ff.Close()
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("fits write %s: %w", path, err)
	}
	if err := ff.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// New builds an image from float pixels with optional header values. It is
// used for synthesised images and tests.
func New(axes []int, data []float64, header map[string]float64) *Image {
	img := &Image{Axes: append([]int(nil), axes...), Bitpix: -32, Data: data}
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		img.cards = append(img.cards, fitsio.Card{Name: k, Value: header[k]})
	}
	return img
}
