// Package quality measures the stage images of a run and reports how the
// image improved from stage to stage.
package quality

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/fitsimg"
	"github.com/msageha/selfcal/internal/logging"
	"github.com/msageha/selfcal/internal/model"
	yamlutil "github.com/msageha/selfcal/internal/yaml"
)

// RecordFile is the per-run metrics file written next to the plots.
const RecordFile = "quality.yaml"

// JournalKey is the journal attribute the records are stored under.
const JournalKey = "quality"

// Record holds the metrics of one stage image.
type Record struct {
	Index   int    `yaml:"index"`
	Stage   string `yaml:"stage"`
	Source  string `yaml:"source"`
	Archive string `yaml:"archive"`
	Metrics `yaml:",inline"`
}

type recordFile struct {
	yamlutil.SchemaHeader `yaml:",inline"`
	Records               []Record `yaml:"records"`
}

// Attributes receives the records; *journal.Journal satisfies it.
type Attributes interface {
	Set(key string, value any)
}

// StageDirs lists the image-producing stage directories of steps in
// execution order.
func StageDirs(steps []model.Step) []string {
	var dirs []string
	for _, s := range steps {
		if s.Type.Images() {
			dirs = append(dirs, artifact.StageDir(s))
		}
	}
	return dirs
}

type Reporter struct {
	cfg     model.QualityConfig
	results string
	attrs   Attributes
	workers int
	log     *logging.Logger
}

// NewReporter returns a reporter over the results directory. attrs may be
// nil when no journal is open.
func NewReporter(cfg model.QualityConfig, results string, attrs Attributes, log *logging.Logger) *Reporter {
	return &Reporter{
		cfg:     cfg,
		results: results,
		attrs:   attrs,
		workers: 3,
		log:     log.Component("quality"),
	}
}

// imagePath returns the stage image, preferring the single-channel
// image over the multi-frequency synthesis one.
func (r *Reporter) imagePath(dir string) (string, error) {
	primary := filepath.Join(r.results, dir, r.cfg.PrimaryImage)
	if artifact.Exists(primary) {
		return primary, nil
	}
	fallback := filepath.Join(r.results, dir, r.cfg.FallbackImage)
	if artifact.Exists(fallback) {
		return fallback, nil
	}
	return "", &artifact.MissingError{Path: primary, What: "stage image"}
}

func (r *Reporter) measure(i int, dir string) (Record, error) {
	src, err := r.imagePath(dir)
	if err != nil {
		return Record{}, err
	}
	img, err := fitsimg.Read(src)
	if err != nil {
		return Record{}, err
	}
	m, err := Measure(img, ApertureFromConfig(r.cfg))
	if err != nil {
		return Record{}, fmt.Errorf("measure %s: %w", src, err)
	}

	archive := filepath.Join(r.results, r.cfg.ImageDir, fmt.Sprintf("%02d_%s.fits", i, dir))
	if err := artifact.CopyFile(src, archive); err != nil {
		return Record{}, fmt.Errorf("archive %s: %w", src, err)
	}

	r.log.Debugf("measured stage=%s rms=%g max_min=%g snr=%g", dir, m.RMS, m.MaxMin, m.SNR)
	return Record{Index: i, Stage: dir, Source: src, Archive: archive, Metrics: m}, nil
}

// Run measures every stage image of steps, archives the images, renders
// the trend plots and stores the records. A missing stage image is fatal.
func (r *Reporter) Run(steps []model.Step) ([]Record, error) {
	dirs := StageDirs(steps)
	if len(dirs) == 0 {
		r.log.Infof("no image-producing stages, nothing to measure")
		return nil, nil
	}

	records := make([]Record, len(dirs))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, dir := range dirs {
		g.Go(func() error {
			rec, err := r.measure(i, dir)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, t := range trends {
		if err := plotTrend(filepath.Join(r.results, t.file), t.title, records, t.value); err != nil {
			return nil, err
		}
	}

	doc := recordFile{
		SchemaHeader: yamlutil.NewHeader(yamlutil.FileTypeQualityRecord),
		Records:      records,
	}
	if err := yamlutil.AtomicWrite(filepath.Join(r.results, RecordFile), &doc); err != nil {
		return nil, fmt.Errorf("write quality records: %w", err)
	}
	if r.attrs != nil {
		r.attrs.Set(JournalKey, records)
	}

	r.log.Infof("quality report stages=%d results=%s", len(records), r.results)
	return records, nil
}

// Load reads a previously written quality.yaml.
func Load(results string) ([]Record, error) {
	var doc recordFile
	if err := yamlutil.Load(filepath.Join(results, RecordFile), yamlutil.FileTypeQualityRecord, &doc); err != nil {
		return nil, err
	}
	return doc.Records, nil
}
