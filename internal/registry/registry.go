// Package registry resolves database endpoints, organism identifiers and
// credential parameter names. Built-in entries are immutable; a YAML overlay
// may add databases and organisms or replace base URLs, never remove them.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/openbioscience/finch/internal/domain"
)

// Registry is the lookup table every query is validated against.
// Immutable after construction, safe for concurrent use.
type Registry struct {
	endpoints  map[domain.Database]string
	organisms  map[string]domain.Organism
	credParams map[domain.Database]string
}

// New returns a registry holding only the built-in entries.
func New() *Registry {
	r := &Registry{
		endpoints:  make(map[domain.Database]string, len(builtinEndpoints)),
		organisms:  make(map[string]domain.Organism, len(builtinOrganisms)),
		credParams: make(map[domain.Database]string, len(builtinCredParams)),
	}
	for db, url := range builtinEndpoints {
		r.endpoints[db] = url
	}
	for name, ids := range builtinOrganisms {
		r.organisms[name] = domain.Organism{Name: name, IDs: cloneIDs(ids)}
	}
	for db, param := range builtinCredParams {
		r.credParams[db] = param
	}
	return r
}

// Load returns the built-in registry extended by the overlay file at path.
// An empty path loads the built-ins alone.
func Load(path string) (*Registry, error) {
	r := New()
	if path == "" {
		return r, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry overlay: %w", err)
	}
	var ov overlay
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return nil, fmt.Errorf("parse registry overlay: %w", err)
	}
	if err := r.apply(&ov); err != nil {
		return nil, err
	}
	return r, nil
}

// BaseURL resolves the base URL for a database. An unknown name is a
// configuration error, never a runtime one.
func (r *Registry) BaseURL(db domain.Database) (string, error) {
	url, ok := r.endpoints[db]
	if !ok {
		return "", domain.ConfigErrorf("unknown database %q", db)
	}
	return url, nil
}

// Has reports whether a database is registered.
func (r *Registry) Has(db domain.Database) bool {
	_, ok := r.endpoints[db]
	return ok
}

// Databases lists the registered database names, sorted.
func (r *Registry) Databases() []domain.Database {
	dbs := make([]domain.Database, 0, len(r.endpoints))
	for db := range r.endpoints {
		dbs = append(dbs, db)
	}
	sort.Slice(dbs, func(i, j int) bool { return dbs[i] < dbs[j] })
	return dbs
}

// Organism resolves a canonical organism name, case-insensitively.
func (r *Registry) Organism(name string) (domain.Organism, bool) {
	o, ok := r.organisms[strings.ToLower(name)]
	return o, ok
}

// Organisms lists the registered organism names, sorted.
func (r *Registry) Organisms() []string {
	names := make([]string, 0, len(r.organisms))
	for name := range r.organisms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CredentialParam returns the request parameter that carries a database's
// API key. Databases without a registered name use "api_key".
func (r *Registry) CredentialParam(db domain.Database) string {
	if param, ok := r.credParams[db]; ok {
		return param
	}
	return "api_key"
}

// overlay is the YAML extension file format.
type overlay struct {
	Endpoints        map[string]string            `yaml:"endpoints"`
	Organisms        map[string]map[string]string `yaml:"organisms"`
	CredentialParams map[string]string            `yaml:"credentialParams"`
}

func (r *Registry) apply(ov *overlay) error {
	for name, url := range ov.Endpoints {
		if url == "" {
			return domain.ConfigErrorf("registry overlay: empty base URL for %q", name)
		}
		r.endpoints[domain.Database(name)] = url
	}
	for name, ids := range ov.Organisms {
		name = strings.ToLower(name)
		org, ok := r.organisms[name]
		if !ok {
			org = domain.Organism{Name: name, IDs: make(map[domain.Database]string, len(ids))}
		}
		for db, id := range ids {
			if !r.Has(domain.Database(db)) {
				return domain.ConfigErrorf("registry overlay: organism %q references unknown database %q", name, db)
			}
			org.IDs[domain.Database(db)] = id
		}
		r.organisms[name] = org
	}
	for db, param := range ov.CredentialParams {
		if param == "" {
			return domain.ConfigErrorf("registry overlay: empty credential parameter for %q", db)
		}
		r.credParams[domain.Database(db)] = param
	}
	return nil
}

func cloneIDs(ids map[domain.Database]string) map[domain.Database]string {
	out := make(map[domain.Database]string, len(ids))
	for db, id := range ids {
		out[db] = id
	}
	return out
}
