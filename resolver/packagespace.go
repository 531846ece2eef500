package resolver

import "github.com/armon/go-radix"

// Blame is a capability together with the chain of requirements that
// explain why it is visible to a subject module. An empty Path means the
// capability is exported directly by the subject module.
type Blame struct {
	Cap  Cap
	Path []*Requirement
}

// extend returns a copy of b with one more requirement appended to the
// path, used while walking the uses-closure (Phase 4) or require-bundle
// re-export chains (Phase 2).
func (b Blame) extend(r *Requirement) Blame {
	path := make([]*Requirement, len(b.Path)+1)
	copy(path, b.Path)
	path[len(b.Path)] = r
	return Blame{Cap: b.Cap, Path: path}
}

// PackageSpace is one module's view of exported, imported, required and
// used packages, each entry carrying its blame chain.
type PackageSpace struct {
	Module *Module

	Exported map[string]Blame
	Imported map[string][]Blame
	Required map[string][]Blame
	Used     map[string][]Blame

	// idx radix-indexes Exported ∪ Imported by package name so Phase 4's
	// uses-merge lookups ("locate S.owner's Blame for u in its own
	// exported or imported space") are a single indexed lookup instead of
	// two map probes repeated across a deep uses-closure walk.
	idx *radix.Tree
}

func newPackageSpace(m *Module) *PackageSpace {
	return &PackageSpace{
		Module:   m,
		Exported: make(map[string]Blame),
		Imported: make(map[string][]Blame),
		Required: make(map[string][]Blame),
		Used:     make(map[string][]Blame),
		idx:      radix.New(),
	}
}

func (ps *PackageSpace) setExported(pkg string, b Blame) {
	ps.Exported[pkg] = b
	ps.idx.Insert(pkg, b)
}

func (ps *PackageSpace) addImported(pkg string, b Blame) {
	ps.Imported[pkg] = append(ps.Imported[pkg], b)
	if _, ok := ps.idx.Get(pkg); !ok {
		ps.idx.Insert(pkg, b)
	}
}

func (ps *PackageSpace) addRequired(pkg string, b Blame) {
	ps.Required[pkg] = append(ps.Required[pkg], b)
}

func (ps *PackageSpace) addUsed(pkg string, b Blame) {
	ps.Used[pkg] = append(ps.Used[pkg], b)
}

// lookupOwnView returns the module's own Blame for a package it sees,
// either because it exports it or imports it, consulting the radix index
// populated during Phases 1-2. Invariant 3 (exported/imported disjoint
// after substitution) guarantees at most one of the two ever applies.
func (ps *PackageSpace) lookupOwnView(pkg string) (Blame, bool) {
	v, ok := ps.idx.Get(pkg)
	if !ok {
		return Blame{}, false
	}
	return v.(Blame), true
}
