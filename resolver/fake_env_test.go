package resolver_test

import (
	"strings"

	"github.com/modwire/resolver/resolver"
)

// fakeEnv is a small, closed-world resolver.Environment for table-driven
// scenario tests, in the spirit of golang-dep's bestiary_test.go fixture
// solver.SourceManager: modules are registered up front, and Candidates
// answers purely from that fixed set, self-matches excluded so a fixture
// author doesn't have to special-case self-import in every scenario.
//
// Requirement.Filter carries the match key directly ("<name>"), with an
// optional ";prefer:id1,id2" suffix a scenario can use to pin the
// candidate order the real environment's own ranking would otherwise
// produce — mirroring how two different consumers of the same package
// can see different preference orders from a real resolver environment.
type fakeEnv struct {
	modules map[resolver.ModuleID]*resolver.Module
	byNS    map[resolver.Namespace][]*resolver.Capability
}

func newFakeEnv(modules ...*resolver.Module) *fakeEnv {
	e := &fakeEnv{
		modules: make(map[resolver.ModuleID]*resolver.Module, len(modules)),
		byNS:    make(map[resolver.Namespace][]*resolver.Capability),
	}
	for _, m := range modules {
		e.modules[m.ID] = m
		for _, c := range m.Capabilities("") {
			e.byNS[c.Namespace] = append(e.byNS[c.Namespace], c)
		}
	}
	return e
}

func (e *fakeEnv) ModuleOf(id resolver.ModuleID) (*resolver.Module, bool) {
	m, ok := e.modules[id]
	return m, ok
}

func (e *fakeEnv) Candidates(req *resolver.Requirement, obeyMandatory bool) []*resolver.Capability {
	name, prefer := parseFilter(req.Filter)

	var pool []*resolver.Capability
	for _, c := range e.byNS[req.Namespace] {
		if c.Owner == req.Owner {
			continue
		}
		if matchKey(req.Namespace, c) != name {
			continue
		}
		pool = append(pool, c)
	}

	var out []*resolver.Capability
	if len(prefer) > 0 {
		// prefer pins this requirement's own effective candidate set and
		// order, as a real environment's per-consumer constraint
		// intersection would: two consumers of the same package can
		// legitimately see different ordered subsets of providers.
		byOwner := make(map[string]*resolver.Capability, len(pool))
		for _, c := range pool {
			byOwner[string(c.Owner)] = c
		}
		for _, id := range prefer {
			if c, ok := byOwner[id]; ok {
				out = append(out, c)
			}
		}
	} else {
		out = pool
	}

	if obeyMandatory && req.IsMandatory() && len(out) == 0 {
		return nil
	}
	return out
}

func matchKey(ns resolver.Namespace, c *resolver.Capability) string {
	switch ns {
	case resolver.NamespacePackage, resolver.NamespaceBundle:
		return c.PackageName()
	case resolver.NamespaceHost:
		return string(c.Owner)
	default:
		return ""
	}
}

func parseFilter(filter string) (name string, prefer []string) {
	parts := strings.Split(filter, ";")
	name = parts[0]
	for _, p := range parts[1:] {
		if strings.HasPrefix(p, "prefer:") {
			prefer = strings.Split(strings.TrimPrefix(p, "prefer:"), ",")
		}
	}
	return name, prefer
}

func pkgCap(id, owner, pkg string, uses ...string) *resolver.Capability {
	return &resolver.Capability{
		ID:         resolver.CapabilityID(id),
		Owner:      resolver.ModuleID(owner),
		Namespace:  resolver.NamespacePackage,
		Attributes: map[string]resolver.Value{resolver.AttrPackage: pkg},
		Uses:       uses,
	}
}

// bundleCap is a require-bundle namespace capability: owner advertises
// itself as the bundle "name" (reusing the same osgi.wiring.package
// attribute convention pkgCap uses, since the fixture's matchKey treats
// package and bundle namespaces alike — filter evaluation is the
// environment's own business per the resolver's contract).
func bundleCap(id, owner, name string) *resolver.Capability {
	return &resolver.Capability{
		ID:         resolver.CapabilityID(id),
		Owner:      resolver.ModuleID(owner),
		Namespace:  resolver.NamespaceBundle,
		Attributes: map[string]resolver.Value{resolver.AttrPackage: name},
	}
}

func bundleReq(id, owner, target string, reexport bool) *resolver.Requirement {
	dirs := map[string]string{resolver.DirectiveResolution: resolver.ResolutionMandatory}
	if reexport {
		dirs[resolver.DirectiveVisibility] = resolver.VisibilityReexport
	}
	return &resolver.Requirement{
		ID:         resolver.RequirementID(id),
		Owner:      resolver.ModuleID(owner),
		Namespace:  resolver.NamespaceBundle,
		Filter:     target,
		Directives: dirs,
	}
}

func hostCap(id, owner string) *resolver.Capability {
	return &resolver.Capability{
		ID:        resolver.CapabilityID(id),
		Owner:     resolver.ModuleID(owner),
		Namespace: resolver.NamespaceHost,
	}
}

func pkgReq(id, owner, pkg string, mandatory bool, prefer ...string) *resolver.Requirement {
	return &resolver.Requirement{
		ID:         resolver.RequirementID(id),
		Owner:      resolver.ModuleID(owner),
		Namespace:  resolver.NamespacePackage,
		Filter:     withPrefer(pkg, prefer),
		Directives: resolutionDirectives(mandatory),
	}
}

func hostReq(id, owner, host string) *resolver.Requirement {
	return &resolver.Requirement{
		ID:        resolver.RequirementID(id),
		Owner:     resolver.ModuleID(owner),
		Namespace: resolver.NamespaceHost,
		Filter:    host,
	}
}

func dynamicPkgReq(id, owner, pkg string) *resolver.Requirement {
	return &resolver.Requirement{
		ID:        resolver.RequirementID(id),
		Owner:     resolver.ModuleID(owner),
		Namespace: resolver.NamespacePackage,
		Filter:    pkg,
		Directives: map[string]string{
			resolver.DirectiveResolution: resolver.ResolutionDynamic,
		},
	}
}

func withPrefer(name string, prefer []string) string {
	if len(prefer) == 0 {
		return name
	}
	return name + ";prefer:" + strings.Join(prefer, ",")
}

func resolutionDirectives(mandatory bool) map[string]string {
	res := resolver.ResolutionMandatory
	if !mandatory {
		res = resolver.ResolutionOptional
	}
	return map[string]string{resolver.DirectiveResolution: res}
}
