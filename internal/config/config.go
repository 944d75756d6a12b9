// Package config loads selfcal's configuration from defaults, an optional
// selfcal.yaml and SELFCAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/msageha/selfcal/internal/model"
)

const (
	// FileName is the configuration file searched for in the working
	// directory.
	FileName  = "selfcal.yaml"
	EnvPrefix = "SELFCAL"
)

// SetDefaults registers every value of model.DefaultConfig with v so keys
// absent from the file still unmarshal and can be overridden from the
// environment.
func SetDefaults(v *viper.Viper) {
	d := model.DefaultConfig()

	v.SetDefault("tools.dppp", d.Tools.DPPP)
	v.SetDefault("tools.wsclean", d.Tools.WSClean)
	v.SetDefault("tools.losoto", d.Tools.LoSoTo)
	v.SetDefault("tools.makesourcedb", d.Tools.MakeSourceDB)

	v.SetDefault("parsets.dir", d.Parsets.Dir)

	v.SetDefault("imaging.template", d.Imaging.Template)
	v.SetDefault("imaging.mask", d.Imaging.Mask)
	v.SetDefault("imaging.auto_mask", d.Imaging.AutoMask)
	v.SetDefault("imaging.auto_threshold", d.Imaging.AutoThreshold)

	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.journal", d.Pipeline.Journal)
	v.SetDefault("pipeline.trace", d.Pipeline.Trace)
	v.SetDefault("pipeline.lock_file", d.Pipeline.LockFile)

	v.SetDefault("diagonal.suppress_negative", d.Diagonal.SuppressNegative)
	v.SetDefault("diagonal.flux_scale_file", d.Diagonal.FluxScaleFile)

	v.SetDefault("quality.center_x", d.Quality.CenterX)
	v.SetDefault("quality.center_y", d.Quality.CenterY)
	v.SetDefault("quality.radius", d.Quality.Radius)
	v.SetDefault("quality.primary_image", d.Quality.PrimaryImage)
	v.SetDefault("quality.fallback_image", d.Quality.FallbackImage)
	v.SetDefault("quality.image_dir", d.Quality.ImageDir)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
}

// New returns a viper instance with defaults and environment binding. When
// file is empty, selfcal.yaml is looked up in the working directory and its
// absence is not an error; an explicitly named file must exist.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// SELFCAL_PIPELINE_WORKERS for pipeline.workers
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals v into a model.Config and validates it.
func Load(v *viper.Viper) (model.Config, error) {
	var cfg model.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return model.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if errs := Validate(cfg); len(errs) > 0 {
		return model.Config{}, errs
	}
	return cfg, nil
}

// LoadFile is New followed by Load.
func LoadFile(file string) (model.Config, error) {
	v, err := New(file)
	if err != nil {
		return model.Config{}, err
	}
	return Load(v)
}
