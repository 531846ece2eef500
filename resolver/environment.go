package resolver

// Environment is consumed by the resolver; it supplies candidate providers
// for a requirement in the environment's own preference order and answers
// whether a module is already wired. Capability indexing and filter
// evaluation are entirely the environment's concern: the resolver never
// evaluates a Requirement.Filter itself, it only ever narrows an ordered
// candidate sequence the environment already produced.
//
// A resolve call treats the environment as read-only: the resolver never
// mutates a Module or an already-installed Wiring.
type Environment interface {
	// Candidates returns providers for req in preference order. If
	// obeyMandatory is true and req cannot be satisfied, Candidates returns
	// an empty (possibly nil) slice rather than some degraded match.
	Candidates(req *Requirement, obeyMandatory bool) []*Capability

	// ModuleOf returns the module that owns a capability or requirement,
	// by its declared owner ID.
	ModuleOf(id ModuleID) (*Module, bool)
}
