// Package agents defines worker personas and the capability table the
// delegation guard consults. Personas ship as built-in defaults and may be
// overridden by manifest files under the state directory's agents folder:
// YAML frontmatter between --- fences, with the prompt body carried
// verbatim below it.
package agents

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the manifest did not start with a
	// YAML fence.
	ErrMissingFrontMatter = errors.New("agents: missing frontmatter")

	// ErrMalformedManifest indicates the YAML block could not be parsed or
	// was not closed.
	ErrMalformedManifest = errors.New("agents: malformed manifest")
)

// Persona describes one worker persona.
type Persona struct {
	// Name is the persona identifier used in delegation calls.
	Name string `yaml:"name"`

	// Description is a one-line summary for listings.
	Description string `yaml:"description,omitempty"`

	// Direct reports whether the persona may be reached by direct
	// delegation. Restricted personas are reachable only through their
	// entry point.
	Direct bool `yaml:"direct"`

	// EntryPoint names the only surface allowed to invoke the persona
	// when Direct is false.
	EntryPoint string `yaml:"entryPoint,omitempty"`

	// Prompt is the manifest body, carried verbatim. Its content is opaque
	// to this module.
	Prompt string `yaml:"-"`
}

// Defaults returns the built-in persona table. Manifest files may override
// any of these.
func Defaults() map[string]Persona {
	return map[string]Persona{
		"implementer": {
			Name:        "implementer",
			Description: "executes an approved plan",
			Direct:      true,
		},
		"reviewer": {
			Name:        "reviewer",
			Description: "reviews changes without modifying them",
			Direct:      true,
		},
		"swarm-worker": {
			Name:        "swarm-worker",
			Description: "runs one task of a batch dispatch",
			Direct:      false,
			EntryPoint:  "dispatch_swarm",
		},
		"plan-author": {
			Name:        "plan-author",
			Description: "writes plan artifacts",
			Direct:      false,
			EntryPoint:  "/plan",
		},
	}
}

// ParseManifest parses one persona manifest: YAML frontmatter between ---
// fences, prompt body below.
func ParseManifest(content []byte) (Persona, error) {
	if len(content) == 0 {
		return Persona{}, ErrMissingFrontMatter
	}
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Persona{}, ErrMissingFrontMatter
	}

	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Persona{}, ErrMalformedManifest
	}

	var p Persona
	if err := yaml.Unmarshal(parts[0], &p); err != nil {
		return Persona{}, fmt.Errorf("agents: parse frontmatter: %w", err)
	}
	p.Name = strings.ToLower(strings.TrimSpace(p.Name))
	p.Prompt = strings.TrimSpace(string(parts[1]))
	return p, nil
}

// Load merges persona manifests from dir over the built-in defaults and
// returns the combined table. A missing directory yields the defaults;
// malformed manifests are skipped. Manifest names default to the file name
// when the frontmatter omits one.
func Load(dir string) *Table {
	personas := Defaults()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return NewTable(personas)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		p, err := ParseManifest(content)
		if err != nil {
			continue
		}
		if p.Name == "" {
			p.Name = strings.ToLower(strings.TrimSuffix(e.Name(), ".md"))
		}
		personas[p.Name] = p
	}
	return NewTable(personas)
}

// Table is the persona capability table consulted by the delegation guard.
type Table struct {
	personas map[string]Persona
}

// NewTable builds a Table, normalizing persona names to lowercase.
func NewTable(personas map[string]Persona) *Table {
	normalized := make(map[string]Persona, len(personas))
	for name, p := range personas {
		key := strings.ToLower(strings.TrimSpace(name))
		if p.Name == "" {
			p.Name = key
		}
		normalized[key] = p
	}
	return &Table{personas: normalized}
}

// Get returns the persona by name, case-insensitively.
func (t *Table) Get(name string) (Persona, bool) {
	p, ok := t.personas[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Restricted reports whether the persona is unreachable by direct
// delegation, and if so, through which entry point it must be invoked.
// Unknown personas are not restricted: the guard only enforces declared
// restrictions.
func (t *Table) Restricted(name string) (entryPoint string, restricted bool) {
	p, ok := t.Get(name)
	if !ok || p.Direct {
		return "", false
	}
	return p.EntryPoint, true
}

// Names returns every persona name, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.personas))
	for name := range t.personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
