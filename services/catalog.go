// Package services holds the static catalog of service entries shown on the
// portal and decides which of them a role may see.
package services

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/jrsteele09/helpdesk-portal/role"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// RequiredRole is the tag an entry carries in configuration.
type RequiredRole string

const (
	RequireAll   RequiredRole = "all"
	RequireAdmin RequiredRole = "admin"
)

// Entry is one service link. Entries are fixed at start-up.
type Entry struct {
	ID           string       `yaml:"id" json:"id"`
	Name         string       `yaml:"name" json:"name"`
	Description  string       `yaml:"description" json:"description,omitempty"`
	Icon         string       `yaml:"icon" json:"icon,omitempty"`
	RequiredRole RequiredRole `yaml:"required_role" json:"requiredRole"`
	URL          string       `yaml:"url" json:"url"`
}

// Catalog is the full, immutable set of entries plus the per-role
// allow-lists of entry names.
type Catalog struct {
	entries []Entry
	allow   map[role.Role]map[string]struct{}
}

type catalogFile struct {
	Services []Entry             `yaml:"services"`
	Allow    map[string][]string `yaml:"allow"`
}

// ValidationError lists every problem found in a catalog file.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid service catalog: " + strings.Join(e.Problems, "; ")
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[services LoadFile] %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("[services Load] decode: %w", err)
	}
	return New(file.Services, file.Allow)
}

// New validates entries and allow-lists and builds a catalog.
func New(entries []Entry, allow map[string][]string) (*Catalog, error) {
	var problems []string
	ids := make(map[string]struct{}, len(entries))
	names := make(map[string]struct{}, len(entries))

	for i, e := range entries {
		label := fmt.Sprintf("service %d", i)
		if e.ID != "" {
			label = fmt.Sprintf("service %q", e.ID)
		}
		switch {
		case e.ID == "":
			problems = append(problems, label+": id is required")
		case hasKey(ids, e.ID):
			problems = append(problems, label+": duplicate id")
		}
		ids[e.ID] = struct{}{}

		switch {
		case e.Name == "":
			problems = append(problems, label+": name is required")
		case hasKey(names, e.Name):
			problems = append(problems, label+": duplicate name")
		}
		names[e.Name] = struct{}{}

		if e.RequiredRole != RequireAll && e.RequiredRole != RequireAdmin {
			problems = append(problems, fmt.Sprintf("%s: required_role must be %q or %q", label, RequireAll, RequireAdmin))
		}
		if u, err := url.Parse(e.URL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			problems = append(problems, label+": url must be an absolute http(s) url")
		}
	}

	allowed := make(map[role.Role]map[string]struct{}, len(allow))
	for rs, list := range allow {
		r, ok := role.Parse(rs)
		if !ok {
			problems = append(problems, fmt.Sprintf("allow: unknown role %q", rs))
			continue
		}
		set := make(map[string]struct{}, len(list))
		for _, name := range list {
			if !hasKey(names, name) {
				problems = append(problems, fmt.Sprintf("allow %s: unknown service name %q", rs, name))
			}
			set[name] = struct{}{}
		}
		allowed[r] = set
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	return &Catalog{
		entries: append([]Entry(nil), entries...),
		allow:   allowed,
	}, nil
}

// Entries returns a copy of every entry in catalog order.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Lookup finds an entry by id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	for _, e := range c.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}
