package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/msageha/selfcal/internal/artifact"
	"github.com/msageha/selfcal/internal/command"
	"github.com/msageha/selfcal/internal/model"
	"github.com/msageha/selfcal/internal/parset"
)

// Data columns written and read by the calibration steps.
const (
	ColumnCorrected     = "CORRECTED_DATA"
	ColumnCorrectedPh   = "CORRECTED_PHASE"
	ColumnCorrectedDiag = "CORRECTED_DATA2"
)

// ImagingBase reads the base imager invocation from path. Shell line
// continuations are joined and the trailing continuation marker is
// dropped; the result is split on whitespace.
func ImagingBase(path string) (command.Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return command.Command{}, fmt.Errorf("read imaging template: %w", err)
	}
	text := strings.TrimRight(string(data), " \t\r\n")
	text = strings.TrimSuffix(text, "\\")
	text = strings.ReplaceAll(text, "\\\n", " ")

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return command.Command{}, fmt.Errorf("imaging template %s is empty", path)
	}
	return command.New(fields[0], fields[1:]...), nil
}

// ImagingCommand appends the stage flags to the base imager invocation:
// data column, mask or auto-masking thresholds, output name and the
// measurement sets.
func ImagingCommand(env Env, dir, column string, mss []string) (command.Command, error) {
	c, err := ImagingBase(filepath.Join(env.ParsetDir, env.Imaging.Template))
	if err != nil {
		return command.Command{}, err
	}
	c = c.With("-data-column", column)

	mask := filepath.Join(env.ParsetDir, env.Imaging.Mask)
	if env.Imaging.Mask != "" && artifact.Exists(mask) {
		c = c.With("-fits-mask", mask)
	} else {
		c = c.With(
			"-auto-mask", formatFloat(env.Imaging.AutoMask),
			"-auto-threshold", formatFloat(env.Imaging.AutoThreshold),
		)
	}
	c = c.With("-name", filepath.Join(env.Results, dir, "ws"))
	return c.With(mss...), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// imagingColumn is the data column a stage type images.
func imagingColumn(t model.StepType) string {
	if t == model.StepDiagonal {
		return ColumnCorrectedDiag
	}
	return ColumnCorrected
}

// export rewrites a losoto template so its output lands in the stage
// directory and runs losoto on a solution table of ms.
func (b *base) export(ctx context.Context, ms, tmpl, soltable, prefix string) error {
	dir := filepath.Join(b.stageDir(), "losoto", artifact.MSName(ms))
	out := filepath.Join(dir, tmpl)
	if err := parset.RewritePrefix(filepath.Join(b.env.ParsetDir, tmpl), filepath.Join(dir, prefix), out); err != nil {
		return err
	}
	return b.run(ctx, command.New(b.env.Tools.LoSoTo, soltable, out))
}
