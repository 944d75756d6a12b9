// Package journal keeps the append-only record of every external command a
// pipeline run issued, together with a free-form attribute bag.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msageha/selfcal/internal/logging"
	yamlutil "github.com/msageha/selfcal/internal/yaml"
)

// Entry is one recorded command.
type Entry struct {
	Time    time.Time `yaml:"time"`
	Command string    `yaml:"command"`
}

type document struct {
	yamlutil.SchemaHeader `yaml:",inline"`
	RunID                 string         `yaml:"run_id"`
	Calls                 int            `yaml:"calls"`
	Entries               []Entry        `yaml:"entries"`
	Attrs                 map[string]any `yaml:"attrs"`
}

// Journal is safe for concurrent use.
type Journal struct {
	path string
	log  *logging.Logger
	now  func() time.Time

	mu  sync.Mutex
	doc document
}

// Option configures Open.
type Option func(*Journal)

// WithLogger sets the logger used for recovery diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(j *Journal) { j.log = l.Component("journal") }
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open loads the journal at path, replacing all defaults with the stored
// state. A missing file yields an empty journal with a fresh run id. A
// corrupt file is quarantined next to the journal and recovered from its
// backup when one is usable.
func Open(path string, opts ...Option) (*Journal, error) {
	j := &Journal{
		path: path,
		log:  logging.Nop(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	j.doc = emptyDocument()

	err := j.load()
	var corrupt *yamlutil.CorruptError
	switch {
	case err == nil:
	case os.IsNotExist(err):
		return j, nil
	case errors.As(err, &corrupt):
		j.log.Warnf("journal_corrupt path=%s error=%v", path, corrupt.Err)
		if rerr := yamlutil.RecoverCorruptedFile(filepath.Dir(path), path, yamlutil.FileTypeRunJournal, j.log); rerr != nil {
			return nil, fmt.Errorf("recover journal: %w", rerr)
		}
		j.doc = emptyDocument()
		if err := j.load(); err != nil {
			return nil, fmt.Errorf("load recovered journal: %w", err)
		}
	default:
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if j.doc.RunID == "" {
		j.doc.RunID = uuid.NewString()
	}
	if j.doc.Attrs == nil {
		j.doc.Attrs = map[string]any{}
	}
	return j, nil
}

func emptyDocument() document {
	return document{
		SchemaHeader: yamlutil.NewHeader(yamlutil.FileTypeRunJournal),
		RunID:        uuid.NewString(),
		Attrs:        map[string]any{},
	}
}

func (j *Journal) load() error {
	var doc document
	if err := yamlutil.Load(j.path, yamlutil.FileTypeRunJournal, &doc); err != nil {
		return err
	}
	j.doc = doc
	return nil
}

// Path returns the backing file.
func (j *Journal) Path() string { return j.path }

// Record appends command with the current time. It does not touch the
// disk; call Persist.
func (j *Journal) Record(command string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.doc.Entries = append(j.doc.Entries, Entry{Time: j.now(), Command: command})
	j.doc.Calls++
}

// Persist atomically replaces the backing file with the in-memory state.
func (j *Journal) Persist() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	if err := yamlutil.AtomicWrite(j.path, &j.doc); err != nil {
		return fmt.Errorf("persist journal: %w", err)
	}
	return nil
}

// Last returns the most recently recorded command.
func (j *Journal) Last() (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.doc.Entries) == 0 {
		return "", false
	}
	return j.doc.Entries[len(j.doc.Entries)-1].Command, true
}

// Entries returns a copy of all entries in record order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.doc.Entries...)
}

func (j *Journal) Calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.doc.Calls
}

func (j *Journal) RunID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.doc.RunID
}

func (j *Journal) Get(key string) (any, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	v, ok := j.doc.Attrs[key]
	return v, ok
}

func (j *Journal) Set(key string, value any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.doc.Attrs[key] = value
}

// Attrs returns a shallow copy of the attribute bag.
func (j *Journal) Attrs() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]any, len(j.doc.Attrs))
	for k, v := range j.doc.Attrs {
		out[k] = v
	}
	return out
}
