package profile

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry looks profiles up by name or by source. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Profile
	bySource map[int64]string
}

func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{
		byName:   make(map[string]Profile),
		bySource: make(map[int64]string),
	}

	for _, p := range profiles {
		if err := r.Add(p); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Add validates p and stores it, replacing any profile with the same name.
func (r *Registry) Add(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	key := strings.ToLower(p.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.bySource[p.SourceID]; ok && p.SourceID != 0 && owner != key {
		return fmt.Errorf("source %d already uses profile %q: %w", p.SourceID, owner, ErrInvalidProfile)
	}

	r.byName[key] = p

	if p.SourceID != 0 {
		r.bySource[p.SourceID] = key
	}

	return nil
}

func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byName[strings.ToLower(name)]

	return p, ok
}

func (r *Registry) ForSource(sourceID int64) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.bySource[sourceID]
	if !ok {
		return Profile{}, false
	}

	return r.byName[name], true
}

// List returns all profiles sorted by name.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Profile, 0, len(r.byName))
	for _, p := range r.byName {
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b Profile) int { return strings.Compare(a.Name, b.Name) })

	return out
}

type file struct {
	Profiles []Profile `yaml:"profiles"`
}

// Decode reads a YAML document with a top-level "profiles" list.
func Decode(r io.Reader) ([]Profile, error) {
	var f file

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}

		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	return f.Profiles, nil
}

// LoadFile adds every profile in the YAML file at path to r.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open profiles: %w", err)
	}
	defer f.Close()

	profiles, err := Decode(f)
	if err != nil {
		return err
	}

	for _, p := range profiles {
		if err := r.Add(p); err != nil {
			return err
		}
	}

	return nil
}
