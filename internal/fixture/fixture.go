// Package fixture loads named seed datasets and pushes them into the data
// store the SUT reads from.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"contract-fuzzer/internal/document"

	"gopkg.in/yaml.v3"
)

// Record is one seed document or row
type Record = map[string]interface{}

// Collection is the ordered seed data of one data-store collection
type Collection struct {
	Name    string   `json:"name"`
	Records []Record `json:"records"`
}

// Fixture is a named set of collections, loaded wholesale
type Fixture struct {
	Name        string       `json:"name"`
	Collections []Collection `json:"collections"`
}

// Collection returns the records of the named collection, or nil
func (f *Fixture) Collection(name string) []Record {
	for _, c := range f.Collections {
		if c.Name == name {
			return c.Records
		}
	}
	return nil
}

// Store is the SUT's data store as seen by the executor. Load replaces every
// previous record; Clear removes all of them. Both must be complete before
// they return.
type Store interface {
	Load(ctx context.Context, f *Fixture) error
	Clear(ctx context.Context) error
}

// NopStore seeds nothing. Cases run against the data the SUT already holds.
type NopStore struct{}

// Load implements the Store interface
func (NopStore) Load(context.Context, *Fixture) error { return nil }

// Clear implements the Store interface
func (NopStore) Clear(context.Context) error { return nil }

// Loader handles loading fixtures from a directory tree laid out as
// <dir>/<fixture>/<collection>.json|yaml|yml
type Loader struct {
	dir string
}

// NewLoader creates a new fixture loader
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads every collection file of the named fixture. Collections are
// returned in file name order, records in file order.
func (l *Loader) Load(name string) (*Fixture, error) {
	dir, err := l.path(name)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", name, err)
	}

	f := &Fixture{Name: name}
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !supported(entry.Name()) {
			continue
		}

		collection := strings.SplitN(entry.Name(), ".", 2)[0]
		if seen[collection] {
			return nil, fmt.Errorf("fixture %s defines collection %s more than once", name, collection)
		}
		seen[collection] = true

		records, err := loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to load fixture %s: %w", name, err)
		}
		f.Collections = append(f.Collections, Collection{Name: collection, Records: records})
	}

	return f, nil
}

// Save writes f as one JSON file per collection, replacing the fixture
// directory's previous collection files.
func (l *Loader) Save(f *Fixture) error {
	dir, err := l.path(f.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create fixture directory: %w", err)
	}

	for _, c := range f.Collections {
		records := c.Records
		if records == nil {
			records = []Record{}
		}
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal collection %s: %w", c.Name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, c.Name+".json"), data, 0644); err != nil {
			return fmt.Errorf("failed to write collection %s: %w", c.Name, err)
		}
	}
	return nil
}

func (l *Loader) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid fixture name %q", name)
	}
	return filepath.Join(l.dir, name), nil
}

func supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// loadFile reads a sequence of records; yaml.v3 reads JSON files as well
func loadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if document.Unwrap(&root) == nil {
		return []Record{}, nil
	}

	value, err := document.Value(&root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: expected a list of records, got %T", filepath.Base(path), value)
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		record, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: record %d is not an object", filepath.Base(path), i)
		}
		records = append(records, record)
	}
	return records, nil
}
