// Package refdata owns the instrument reference tables: which instruments
// the gateway knows, their filter sets and their parameter defaults.
//
// Tables are read from a directory of YAML files (one per instrument) when
// one is configured, and fall back to the compiled-in set otherwise. The
// directory can be hot-reloaded; a failed reload keeps the previous tables.
package refdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

// Set holds the currently active instrument tables. All methods are safe for
// concurrent use; Reload swaps the whole table atomically.
type Set struct {
	dir string

	mu          sync.RWMutex
	instruments map[string]etc.Instrument
	source      string
	loadedAt    time.Time

	now func() time.Time
}

// Status describes where the active tables came from, for diagnostics.
type Status struct {
	Source      string    `json:"source"` // "builtin" or "directory"
	Dir         string    `json:"dir,omitempty"`
	Instruments int       `json:"instruments"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// New builds a Set reading from dir. An empty dir selects the compiled-in
// tables. The initial load happens here; later changes arrive via Reload or
// Watch.
func New(dir string) (*Set, error) {
	s := &Set{dir: dir, now: time.Now}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the reference tables. On failure the previous tables stay
// active and the error is returned.
func (s *Set) Reload() error {
	var (
		instruments map[string]etc.Instrument
		source      string
		err         error
	)
	if s.dir == "" {
		instruments, err = index(etc.Builtin())
		source = "builtin"
	} else {
		instruments, err = loadDir(s.dir)
		source = "directory"
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.instruments = instruments
	s.source = source
	s.loadedAt = s.now()
	s.mu.Unlock()
	return nil
}

// Instruments returns the known instruments sorted by name.
func (s *Set) Instruments() []etc.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]etc.Instrument, 0, len(s.instruments))
	for _, ins := range s.instruments {
		out = append(out, ins)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the table for one instrument.
func (s *Set) Lookup(name string) (etc.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ins, ok := s.instruments[name]
	if !ok {
		return etc.Instrument{}, fmt.Errorf("refdata: %q: %w", name, etc.ErrUnknownInstrument)
	}
	return ins, nil
}

// Defaults returns the parameter defaults table for one instrument.
func (s *Set) Defaults(name string) (etc.ParamSet, error) {
	ins, err := s.Lookup(name)
	if err != nil {
		return etc.ParamSet{}, err
	}
	return ins.Defaults, nil
}

// Validate checks p against the active tables: the instrument must be known
// and the filter must be in its filter set.
func (s *Set) Validate(p etc.ParamSet) error {
	ins, err := s.Lookup(p.Instrument)
	if err != nil {
		return err
	}
	if !ins.HasFilter(p.Filter) {
		return fmt.Errorf("refdata: %q has no filter %q: %w", p.Instrument, p.Filter, etc.ErrUnknownFilter)
	}
	return nil
}

// Status reports the provenance of the active tables.
func (s *Set) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		Source:      s.source,
		Dir:         s.dir,
		Instruments: len(s.instruments),
		LoadedAt:    s.loadedAt,
	}
}

// loadDir reads one YAML file per instrument from dir.
func loadDir(dir string) (map[string]etc.Instrument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("refdata: read dir %q: %w", dir, err)
	}

	var instruments []etc.Instrument
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("refdata: read %q: %w", path, err)
		}

		var ins etc.Instrument
		if err := yaml.Unmarshal(data, &ins); err != nil {
			return nil, fmt.Errorf("refdata: parse %q: %w", path, err)
		}
		if err := check(ins); err != nil {
			return nil, fmt.Errorf("refdata: %q: %w", path, err)
		}
		instruments = append(instruments, ins)
	}

	if len(instruments) == 0 {
		return nil, fmt.Errorf("refdata: no instrument files in %q", dir)
	}
	return index(instruments)
}

// index builds the name lookup map, rejecting duplicates.
func index(instruments []etc.Instrument) (map[string]etc.Instrument, error) {
	m := make(map[string]etc.Instrument, len(instruments))
	for _, ins := range instruments {
		if _, dup := m[ins.Name]; dup {
			return nil, fmt.Errorf("refdata: duplicate instrument %q", ins.Name)
		}
		m[ins.Name] = ins
	}
	return m, nil
}

// check validates one instrument table.
func check(ins etc.Instrument) error {
	if ins.Name == "" {
		return fmt.Errorf("instrument name is required")
	}
	if len(ins.Filters) == 0 {
		return fmt.Errorf("instrument %q has no filters", ins.Name)
	}
	if ins.Defaults.Instrument != "" && ins.Defaults.Instrument != ins.Name {
		return fmt.Errorf("instrument %q defaults name %q mismatched", ins.Name, ins.Defaults.Instrument)
	}
	if !ins.HasFilter(ins.Defaults.Filter) {
		return fmt.Errorf("instrument %q default filter %q is not in its filter set", ins.Name, ins.Defaults.Filter)
	}
	return nil
}
