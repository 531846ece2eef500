// Package resolver decides, for a set of installed modules each declaring
// capabilities and requirements, whether a consistent assignment of one
// provider per requirement exists for a designated root module. It is a
// pure function of (environment, root) -> wires; it performs no I/O and
// mutates nothing outside its own call stack.
package resolver

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Namespace identifies the kind of facet a Capability advertises or a
// Requirement demands. Three namespaces carry special meaning to the
// resolver; all others participate in wiring but never in uses-constraint
// logic.
type Namespace string

const (
	// NamespacePackage is the namespace subject to uses-constraint checking.
	NamespacePackage Namespace = "package"
	// NamespaceBundle is require-bundle: pulling in a provider's entire
	// export set, possibly re-exported transitively.
	NamespaceBundle Namespace = "bundle"
	// NamespaceHost attaches a fragment module to a host module.
	NamespaceHost Namespace = "host"
)

// Reserved directive names and values.
const (
	DirectiveResolution = "resolution"
	DirectiveVisibility = "visibility"
	DirectiveEffective  = "effective"

	ResolutionMandatory = "mandatory"
	ResolutionOptional  = "optional"
	ResolutionDynamic   = "dynamic"

	VisibilityPrivate  = "private"
	VisibilityReexport = "reexport"
)

// AttrPackage is the capability attribute key carrying the package name on
// package-namespace capabilities.
const AttrPackage = "osgi.wiring.package"

// Value is the attribute/filter value type: string, number, *semver.Version,
// or a []Value of any of those.
type Value interface{}

// ModuleID identifies a Module within one resolve call's arena.
type ModuleID string

// CapabilityID identifies a declared Capability within one resolve call's
// arena; Hosted wrappers over the same declaration share this ID.
type CapabilityID string

// RequirementID identifies a declared Requirement within one resolve call's
// arena; Hosted wrappers over the same declaration share this ID.
type RequirementID string

// Capability is an advertisement of a provided facet in some namespace,
// owned by a module.
type Capability struct {
	ID         CapabilityID
	Owner      ModuleID
	Namespace  Namespace
	Attributes map[string]Value
	Directives map[string]string
	// Uses lists other packages whose provider, as seen by any module that
	// can see this capability, must match this capability owner's own view.
	// Populated only on package-namespace capabilities.
	Uses []string
}

// PackageName returns the osgi.wiring.package attribute value, or "" if this
// isn't a package-namespace capability (or the attribute is absent).
func (c *Capability) PackageName() string {
	if c == nil {
		return ""
	}
	v, _ := c.Attributes[AttrPackage].(string)
	return v
}

// Version returns the capability's version attribute, if any.
func (c *Capability) Version() *semver.Version {
	if c == nil {
		return nil
	}
	v, _ := c.Attributes["version"].(*semver.Version)
	return v
}

// Requirement is a demand that matches a capability by filter, owned by a
// module. Filter evaluation itself is the Environment's job (see
// environment.go); the resolver treats Filter as opaque data it forwards,
// except where directives steer its own control flow.
type Requirement struct {
	ID         RequirementID
	Owner      ModuleID
	Namespace  Namespace
	Filter     string
	Directives map[string]string
}

// Resolution returns the resolution directive, defaulting to mandatory.
func (r *Requirement) Resolution() string {
	if r == nil {
		return ResolutionMandatory
	}
	if v, ok := r.Directives[DirectiveResolution]; ok && v != "" {
		return v
	}
	return ResolutionMandatory
}

func (r *Requirement) IsMandatory() bool { return r.Resolution() == ResolutionMandatory }
func (r *Requirement) IsOptional() bool  { return r.Resolution() == ResolutionOptional }
func (r *Requirement) IsDynamic() bool   { return r.Resolution() == ResolutionDynamic }

// Visibility returns the visibility directive, defaulting to private.
func (r *Requirement) Visibility() string {
	if r == nil {
		return VisibilityPrivate
	}
	if v, ok := r.Directives[DirectiveVisibility]; ok && v != "" {
		return v
	}
	return VisibilityPrivate
}

func (r *Requirement) IsReexport() bool { return r.Visibility() == VisibilityReexport }

// Wiring is present on a Module iff it is already resolved; the environment
// exposes it, and the resolver then treats the module's declared caps/reqs
// as frozen and reads RequiredWires/Capabilities/Requirements from here
// instead of resolving it afresh.
type Wiring struct {
	RequiredWires []*Wire
	Capabilities  []*Capability
	Requirements  []*Requirement
}

// Module is a versioned unit declaring capabilities and requirements;
// synonymous with "revision" in spec terminology.
type Module struct {
	ID                  ModuleID
	SymbolicName        string
	Version             string
	DeclaredCapabilities []*Capability
	DeclaredRequirements []*Requirement
	Wiring              *Wiring // non-nil iff already resolved
}

// IsWired reports whether this module is already resolved.
func (m *Module) IsWired() bool { return m != nil && m.Wiring != nil }

func (m *Module) errString() string {
	if m == nil {
		return "(nil)"
	}
	if m.Version != "" {
		return fmt.Sprintf("%s@%s", m.SymbolicName, m.Version)
	}
	return m.SymbolicName
}

// Capabilities returns the module's declared capabilities, optionally
// filtered to one namespace.
func (m *Module) Capabilities(ns Namespace) []*Capability {
	if ns == "" {
		return m.DeclaredCapabilities
	}
	var out []*Capability
	for _, c := range m.DeclaredCapabilities {
		if c.Namespace == ns {
			out = append(out, c)
		}
	}
	return out
}

// Requirements returns the module's declared requirements, optionally
// filtered to one namespace.
func (m *Module) Requirements(ns Namespace) []*Requirement {
	if ns == "" {
		return m.DeclaredRequirements
	}
	var out []*Requirement
	for _, r := range m.DeclaredRequirements {
		if r.Namespace == ns {
			out = append(out, r)
		}
	}
	return out
}

// HostRequirement returns the module's host-namespace requirement, if it
// has one, marking it as a Fragment.
func (m *Module) HostRequirement() (*Requirement, bool) {
	for _, r := range m.DeclaredRequirements {
		if r.Namespace == NamespaceHost {
			return r, true
		}
	}
	return nil, false
}

// IsFragment reports whether m declares a host requirement.
func (m *Module) IsFragment() bool {
	_, is := m.HostRequirement()
	return is
}

// Wire is a realized (requirement -> capability) edge between two modules
// after resolution.
type Wire struct {
	Requirer   ModuleID
	Requirement *Requirement
	Provider   ModuleID
	Capability *Capability
}
