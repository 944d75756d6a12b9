package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/msageha/selfcal/internal/model"
)

// ValidationError represents a single invalid configuration value.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func (e ValidationErrors) FormatStderr() string {
	return "error: invalid configuration\n" + e.Error() + "\n"
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "warning", "error"}
}

// Validate returns every invalid value in cfg.
func Validate(cfg model.Config) ValidationErrors {
	var errs ValidationErrors
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	tools := map[string]string{
		"tools.dppp":         cfg.Tools.DPPP,
		"tools.wsclean":      cfg.Tools.WSClean,
		"tools.losoto":       cfg.Tools.LoSoTo,
		"tools.makesourcedb": cfg.Tools.MakeSourceDB,
	}
	for _, field := range []string{"tools.dppp", "tools.wsclean", "tools.losoto", "tools.makesourcedb"} {
		if strings.TrimSpace(tools[field]) == "" {
			add(field, tools[field], "must name an executable")
		}
	}

	if cfg.Parsets.Dir == "" {
		add("parsets.dir", cfg.Parsets.Dir, "must not be empty")
	}
	if cfg.Imaging.Template == "" {
		add("imaging.template", cfg.Imaging.Template, "must not be empty")
	}
	if cfg.Imaging.AutoMask <= 0 {
		add("imaging.auto_mask", cfg.Imaging.AutoMask, "must be positive")
	}
	if cfg.Imaging.AutoThreshold <= 0 {
		add("imaging.auto_threshold", cfg.Imaging.AutoThreshold, "must be positive")
	}

	if cfg.Pipeline.Workers < 1 || cfg.Pipeline.Workers > 64 {
		add("pipeline.workers", cfg.Pipeline.Workers, "must be between 1 and 64")
	}
	if cfg.Pipeline.Journal == "" {
		add("pipeline.journal", cfg.Pipeline.Journal, "must not be empty")
	}
	if cfg.Pipeline.Trace == "" {
		add("pipeline.trace", cfg.Pipeline.Trace, "must not be empty")
	}
	if cfg.Pipeline.LockFile == "" {
		add("pipeline.lock_file", cfg.Pipeline.LockFile, "must not be empty")
	}

	if cfg.Quality.Radius < 1 {
		add("quality.radius", cfg.Quality.Radius, "must be at least 1 pixel")
	}
	if cfg.Quality.CenterX < 0 {
		add("quality.center_x", cfg.Quality.CenterX, "must not be negative")
	}
	if cfg.Quality.CenterY < 0 {
		add("quality.center_y", cfg.Quality.CenterY, "must not be negative")
	}
	if cfg.Quality.PrimaryImage == "" {
		add("quality.primary_image", cfg.Quality.PrimaryImage, "must not be empty")
	}
	if cfg.Quality.ImageDir == "" {
		add("quality.image_dir", cfg.Quality.ImageDir, "must not be empty")
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(cfg.Logging.Level)) {
		add("logging.level", cfg.Logging.Level, "must be one of "+strings.Join(ValidLogLevels(), ", "))
	}
	return errs
}
