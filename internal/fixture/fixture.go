// Package fixture loads a static TOML-described set of installed modules
// into an in-memory resolver.Environment, the way golang-dep's toml.go
// loads Gopkg.toml into a manifest/lock pair for its solver.
package fixture

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/modwire/resolver/resolver"
)

// Doc is the root of a fixture file: a flat list of installed modules.
type Doc struct {
	Modules []ModuleDoc `toml:"modules"`
}

type ModuleDoc struct {
	ID           string               `toml:"id"`
	SymbolicName string               `toml:"symbolic_name"`
	Version      string               `toml:"version"`
	Wired        bool                 `toml:"wired"`
	Capabilities []CapabilityDoc      `toml:"capabilities"`
	Requirements []RequirementDoc     `toml:"requirements"`
}

type CapabilityDoc struct {
	ID         string            `toml:"id"`
	Namespace  string            `toml:"namespace"`
	Attributes map[string]any    `toml:"attributes"`
	Directives map[string]string `toml:"directives"`
	Uses       []string          `toml:"uses"`
}

type RequirementDoc struct {
	ID         string            `toml:"id"`
	Namespace  string            `toml:"namespace"`
	Filter     string            `toml:"filter"`
	Directives map[string]string `toml:"directives"`
}

// Load reads a TOML fixture file and builds an Environment over it, plus
// a lookup of every module by ID.
func Load(path string) (*Environment, map[resolver.ModuleID]*resolver.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading fixture %s", path)
	}

	var doc Doc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing fixture %s", path)
	}

	env := newEnvironment()
	modules := make(map[resolver.ModuleID]*resolver.Module, len(doc.Modules))

	for _, md := range doc.Modules {
		m := &resolver.Module{
			ID:           resolver.ModuleID(md.ID),
			SymbolicName: md.SymbolicName,
			Version:      md.Version,
		}
		for _, cd := range md.Capabilities {
			m.DeclaredCapabilities = append(m.DeclaredCapabilities, toCapability(m.ID, cd))
		}
		for _, rd := range md.Requirements {
			m.DeclaredRequirements = append(m.DeclaredRequirements, toRequirement(m.ID, rd))
		}
		if md.Wired {
			m.Wiring = &resolver.Wiring{Capabilities: m.DeclaredCapabilities, Requirements: m.DeclaredRequirements}
		}
		modules[m.ID] = m
		env.add(m)
	}

	return env, modules, nil
}

// toCapability converts a fixture's attribute table into the resolver's
// Value type, parsing a "version" string attribute into a *semver.Version
// the same way golang-dep's toml.go turns a Gopkg.toml constraint string
// into a usable version for comparison rather than leaving it opaque.
func toCapability(owner resolver.ModuleID, cd CapabilityDoc) *resolver.Capability {
	attrs := make(map[string]resolver.Value, len(cd.Attributes))
	for k, v := range cd.Attributes {
		if k == "version" {
			if s, ok := v.(string); ok {
				if parsed, err := semver.NewVersion(s); err == nil {
					attrs[k] = parsed
					continue
				}
			}
		}
		attrs[k] = v
	}
	return &resolver.Capability{
		ID:         resolver.CapabilityID(cd.ID),
		Owner:      owner,
		Namespace:  resolver.Namespace(cd.Namespace),
		Attributes: attrs,
		Directives: cd.Directives,
		Uses:       cd.Uses,
	}
}

func toRequirement(owner resolver.ModuleID, rd RequirementDoc) *resolver.Requirement {
	return &resolver.Requirement{
		ID:         resolver.RequirementID(rd.ID),
		Owner:      owner,
		Namespace:  resolver.Namespace(rd.Namespace),
		Filter:     rd.Filter,
		Directives: rd.Directives,
	}
}

// Environment is a minimal in-memory resolver.Environment over a closed
// set of modules, with a small LDAP-style filter matcher. Capability
// indexing and filter evaluation are the environment's concern per the
// resolver's own contract, so that logic lives entirely here.
type Environment struct {
	modules map[resolver.ModuleID]*resolver.Module
	byNS    map[resolver.Namespace][]*resolver.Capability
}

func newEnvironment() *Environment {
	return &Environment{
		modules: make(map[resolver.ModuleID]*resolver.Module),
		byNS:    make(map[resolver.Namespace][]*resolver.Capability),
	}
}

func (e *Environment) add(m *resolver.Module) {
	e.modules[m.ID] = m
	for _, c := range m.Capabilities("") {
		e.byNS[c.Namespace] = append(e.byNS[c.Namespace], c)
	}
}

func (e *Environment) ModuleOf(id resolver.ModuleID) (*resolver.Module, bool) {
	m, ok := e.modules[id]
	return m, ok
}

func (e *Environment) Candidates(req *resolver.Requirement, obeyMandatory bool) []*resolver.Capability {
	var out []*resolver.Capability
	for _, c := range e.byNS[req.Namespace] {
		if matchFilter(req.Filter, c) {
			out = append(out, c)
		}
	}
	if obeyMandatory && req.IsMandatory() && len(out) == 0 {
		return nil
	}
	return out
}

// matchFilter supports a tiny LDAP-filter subset: (key=value), (key=*)
// presence, and (&(f1)(f2)...) conjunction. An empty filter matches
// everything in the requirement's namespace.
func matchFilter(filter string, c *resolver.Capability) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	if !strings.HasPrefix(filter, "(") || !strings.HasSuffix(filter, ")") {
		return false
	}
	inner := filter[1 : len(filter)-1]

	if strings.HasPrefix(inner, "&") {
		for _, clause := range splitClauses(inner[1:]) {
			if !matchFilter(clause, c) {
				return false
			}
		}
		return true
	}

	eq := strings.IndexByte(inner, '=')
	if eq < 0 {
		return false
	}
	key, val := inner[:eq], inner[eq+1:]
	if val == "*" {
		_, ok := c.Attributes[key]
		return ok
	}
	got, ok := c.Attributes[key]
	if !ok {
		return false
	}
	return fmt.Sprintf("%v", got) == val
}

// splitClauses splits a run of parenthesized clauses like
// "(a=1)(b=2)" into ["(a=1)", "(b=2)"].
func splitClauses(s string) []string {
	var out []string
	depth := 0
	start := -1
	for i, r := range s {
		switch r {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, s[start:i+1])
				start = -1
			}
		}
	}
	return out
}
