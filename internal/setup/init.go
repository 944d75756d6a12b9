// Package setup prepares a working directory for selfcal runs.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/selfcal/internal/config"
	"github.com/msageha/selfcal/internal/model"
	atomicyaml "github.com/msageha/selfcal/internal/yaml"
	"github.com/msageha/selfcal/templates"
)

// ExistsError is returned when the configuration file is already present
// and overwriting was not requested.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("%s already exists", e.Path)
}

func (e *ExistsError) FormatStderr() string {
	return fmt.Sprintf("error: %s already exists\nhint: pass --force to overwrite it\n", e.Path)
}

// Run writes the default selfcal.yaml into dir and creates the parset
// directory it names. It returns the path of the written file.
func Run(dir string, force bool) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve dir: %w", err)
	}
	path := filepath.Join(absDir, config.FileName)

	if _, err := os.Stat(path); err == nil && !force {
		return "", &ExistsError{Path: path}
	}

	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return "", fmt.Errorf("read config template: %w", err)
	}
	cfg, err := parseTemplate(data)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", absDir, err)
	}
	if err := atomicyaml.AtomicWriteRaw(path, data); err != nil {
		return "", fmt.Errorf("write %s: %w", config.FileName, err)
	}

	parsets := cfg.Parsets.Dir
	if !filepath.IsAbs(parsets) {
		parsets = filepath.Join(absDir, parsets)
	}
	if err := os.MkdirAll(parsets, 0755); err != nil {
		return "", fmt.Errorf("create parset dir: %w", err)
	}
	return path, nil
}

// parseTemplate decodes and validates the embedded configuration so a
// broken template is never written out.
func parseTemplate(data []byte) (model.Config, error) {
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config template: %w", err)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return model.Config{}, fmt.Errorf("config template: %w", errs)
	}
	return cfg, nil
}
