package definition

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Registry holds the process-lifetime set of device definitions, keyed by
// name, in registration order. Registration order is the order scans visit
// definitions, so it must be stable.
type Registry struct {
	defs    []*DeviceDefinition
	byName  map[string]*DeviceDefinition
	loadErr bool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*DeviceDefinition)}
}

// Add registers a migrated definition. A duplicate name is rejected; the
// first registration wins.
func (r *Registry) Add(d *DeviceDefinition) error {
	if d.Name == "" {
		return fmt.Errorf("definition: definition has no name")
	}
	if _, ok := r.byName[d.Name]; ok {
		return fmt.Errorf("definition: duplicate definition name %q", d.Name)
	}
	r.byName[d.Name] = d
	r.defs = append(r.defs, d)
	return nil
}

// All returns the definitions in registration order. The returned slice must
// not be mutated.
func (r *Registry) All() []*DeviceDefinition {
	return r.defs
}

// Get returns the named definition, or nil if unknown.
func (r *Registry) Get(name string) *DeviceDefinition {
	return r.byName[name]
}

func (r *Registry) Len() int {
	return len(r.defs)
}

// HadLoadError reports whether any individual file failed during LoadDir.
// Failures never abort loading of the remaining files; this sticky flag is
// how partial failure is surfaced to the caller.
func (r *Registry) HadLoadError() bool {
	return r.loadErr
}

// LoadDir reads every .json file in dir, deserializes and migrates each, and
// returns the resulting registry. Files are visited in lexical order so scan
// order is deterministic. A malformed or unmigratable file is logged and
// skipped.
func LoadDir(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("definition: read dir %s: %w", dir, err)
	}

	r := NewRegistry()
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := r.loadFile(path); err != nil {
			logger.Error("failed to load device definition", "path", path, "err", err)
			r.loadErr = true
		}
	}
	return r, nil
}

func (r *Registry) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var def DeviceDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if def.ServiceUUID == "" || def.CharacteristicUUID == "" {
		return fmt.Errorf("definition %q is missing service or characteristic UUID", def.Name)
	}
	if _, err := ParseUUID(def.ServiceUUID); err != nil {
		return err
	}
	if _, err := ParseUUID(def.CharacteristicUUID); err != nil {
		return err
	}
	if err := def.Migrate(); err != nil {
		return err
	}
	return r.Add(&def)
}
