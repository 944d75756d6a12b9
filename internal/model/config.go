// Package model defines selfcal's configuration and reduction-step types.
package model

type Config struct {
	Tools    ToolsConfig    `yaml:"tools" mapstructure:"tools"`
	Parsets  ParsetConfig   `yaml:"parsets" mapstructure:"parsets"`
	Imaging  ImagingConfig  `yaml:"imaging" mapstructure:"imaging"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Diagonal DiagonalConfig `yaml:"diagonal" mapstructure:"diagonal"`
	Quality  QualityConfig  `yaml:"quality" mapstructure:"quality"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// ToolsConfig names the external executables.
type ToolsConfig struct {
	DPPP         string `yaml:"dppp" mapstructure:"dppp"`
	WSClean      string `yaml:"wsclean" mapstructure:"wsclean"`
	LoSoTo       string `yaml:"losoto" mapstructure:"losoto"`
	MakeSourceDB string `yaml:"makesourcedb" mapstructure:"makesourcedb"`
}

type ParsetConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

type ImagingConfig struct {
	Template      string  `yaml:"template" mapstructure:"template"`             // base command file inside parsets.dir
	Mask          string  `yaml:"mask" mapstructure:"mask"`                     // optional clean mask inside parsets.dir
	AutoMask      float64 `yaml:"auto_mask" mapstructure:"auto_mask"`           // used when no mask file exists
	AutoThreshold float64 `yaml:"auto_threshold" mapstructure:"auto_threshold"` // used when no mask file exists
}

type PipelineConfig struct {
	Workers  int    `yaml:"workers" mapstructure:"workers"`
	Journal  string `yaml:"journal" mapstructure:"journal"`
	Trace    string `yaml:"trace" mapstructure:"trace"`
	LockFile string `yaml:"lock_file" mapstructure:"lock_file"`
}

type DiagonalConfig struct {
	SuppressNegative bool   `yaml:"suppress_negative" mapstructure:"suppress_negative"`
	FluxScaleFile    string `yaml:"flux_scale_file" mapstructure:"flux_scale_file"`
}

type QualityConfig struct {
	CenterX       int    `yaml:"center_x" mapstructure:"center_x"`
	CenterY       int    `yaml:"center_y" mapstructure:"center_y"`
	Radius        int    `yaml:"radius" mapstructure:"radius"`
	PrimaryImage  string `yaml:"primary_image" mapstructure:"primary_image"`
	FallbackImage string `yaml:"fallback_image" mapstructure:"fallback_image"`
	ImageDir      string `yaml:"image_dir" mapstructure:"image_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		Tools: ToolsConfig{
			DPPP:         "DPPP",
			WSClean:      "wsclean",
			LoSoTo:       "losoto",
			MakeSourceDB: "makesourcedb",
		},
		Parsets: ParsetConfig{Dir: "parsets"},
		Imaging: ImagingConfig{
			Template:      "imaging.sh",
			Mask:          "casamask.fits",
			AutoMask:      5,
			AutoThreshold: 1.5,
		},
		Pipeline: PipelineConfig{
			Workers:  3,
			Journal:  "journal.yaml",
			Trace:    "dryrun.trace",
			LockFile: ".selfcal.lock",
		},
		Diagonal: DiagonalConfig{SuppressNegative: true},
		Quality: QualityConfig{
			CenterX:       40,
			CenterY:       40,
			Radius:        30,
			PrimaryImage:  "ws-image.fits",
			FallbackImage: "ws-MFS-image.fits",
			ImageDir:      "images",
		},
		Logging: LoggingConfig{Level: "info", File: "logs/selfcal.log"},
	}
}
