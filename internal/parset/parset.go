// Package parset reads DPPP/losoto option templates and builds the ordered
// key=value argument lists passed to the external tools.
package parset

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ConfigError reports a template that defines a key selfcal injects itself.
type ConfigError struct {
	Path string
	Line int
	Key  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s:%d: %s must not be set in a parset template, it is injected by the stage", e.Path, e.Line, e.Key)
}

func (e *ConfigError) FormatStderr() string {
	return fmt.Sprintf("error: parset %s line %d defines %s\nhint: remove the line, selfcal sets %s for every stage\n",
		e.Path, e.Line, e.Key, e.Key)
}

// forbidden returns the reserved key a template line defines, or "".
func forbidden(line string) string {
	switch {
	case strings.Contains(line, "h5parm"):
		return "h5parm"
	case strings.Contains(line, "msout.datacolumn"):
		return "msout.datacolumn"
	}
	key, _, ok := strings.Cut(line, "=")
	if ok && strings.TrimSpace(key) == "msin" {
		return "msin"
	}
	return ""
}

// Parse reads the template at path. Blank lines are dropped and all spaces
// are removed from the remaining lines, so "steps = [ddecal]" becomes
// "steps=[ddecal]". File order is preserved.
func Parse(path string) (*Builder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parset: %w", err)
	}
	defer func() { _ = f.Close() }()

	b := &Builder{}
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if key := forbidden(line); key != "" {
			return nil, &ConfigError{Path: path, Line: n, Key: key}
		}
		b.opts = append(b.opts, strings.ReplaceAll(line, " ", ""))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read parset %s: %w", path, err)
	}
	return b, nil
}

// Builder accumulates options. Options added later override earlier ones
// when the tool parses its argument list, so Add order is significant.
type Builder struct {
	opts []string
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder { return &Builder{} }

// Add appends key=value and returns b for chaining.
func (b *Builder) Add(key, value string) *Builder {
	b.opts = append(b.opts, key+"="+value)
	return b
}

// Build returns an immutable snapshot; the builder may keep being used.
func (b *Builder) Build() Parset {
	return Parset{opts: append([]string(nil), b.opts...)}
}

// Parset is an immutable ordered option list.
type Parset struct {
	opts []string
}

// Options returns a copy of the options in order.
func (p Parset) Options() []string {
	return append([]string(nil), p.opts...)
}

// Args returns the options as command arguments.
func (p Parset) Args() []string { return p.Options() }

func (p Parset) Len() int { return len(p.opts) }

func (p Parset) String() string { return strings.Join(p.opts, " ") }
