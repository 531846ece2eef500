package resolver

import "sort"

// sortedPackageNames returns m's keys in a stable, deterministic order so
// that which violation Checks A-C surface first (and therefore which
// permutation gets pushed first) never depends on Go's randomized map
// iteration, per §8's determinism property — the same hazard
// `sortedModuleIDs` in candidates.go guards against for population order.
func sortedPackageNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for pkg := range m {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// checkAll walks every package space reachable from root and returns the
// first inconsistency found (Check A through D of §4.3), or nil if the
// whole reachable set is consistent. uses/imports are the driver's
// permutation stacks; a check that finds a conflict pushes whatever
// permutations its blamed requirements still allow (none, when every one
// of them is down to a single candidate) before returning its failure.
func checkAll(root *Module, cands *Candidates, spaces Spaces, uses, imports *permStack, dynamic ModuleID) *ResolveFailure {
	checked := make(map[ModuleID]bool)
	return checkModule(root, cands, spaces, checked, uses, imports, dynamic)
}

func checkModule(m *Module, cands *Candidates, spaces Spaces, checked map[ModuleID]bool, uses, imports *permStack, dynamic ModuleID) *ResolveFailure {
	if checked[m.ID] {
		return nil
	}
	checked[m.ID] = true
	if m.IsWired() && m.ID != dynamic {
		return nil
	}

	ps := spaces[m.ID]
	if ps == nil {
		return nil
	}

	if f := checkFragmentImportConflict(m, ps, cands, imports); f != nil {
		return f
	}
	if f := checkExportVsUsed(m, ps, cands, uses); f != nil {
		return f
	}
	if f := checkImportVsUsed(m, ps, cands, uses, imports); f != nil {
		return f
	}
	return checkRecurseImports(m, ps, cands, spaces, checked, uses, imports, dynamic)
}

// checkFragmentImportConflict is Check A: two different providers both
// imported for the same package is unrecoverable for this map.
func checkFragmentImportConflict(m *Module, ps *PackageSpace, cands *Candidates, imports *permStack) *ResolveFailure {
	for _, pkg := range sortedPackageNames(ps.Imported) {
		blames := ps.Imported[pkg]
		if len(blames) < 2 {
			continue
		}
		first := blames[0]
		for _, other := range blames[1:] {
			if other.Cap.EffectiveOwner() == first.Cap.EffectiveOwner() {
				continue
			}
			pushPermutationFor(cands, imports, first.Path)
			pushPermutationFor(cands, imports, other.Path)
			return newFragmentImportConflict(cands, m, pkg, first, other)
		}
	}
	return nil
}

// checkExportVsUsed is Check B: an exported package incompatible with
// what the uses-closure says M must see is a violation, resolved by
// mutating the uses-blame chain from the deepest requirement back.
func checkExportVsUsed(m *Module, ps *PackageSpace, cands *Candidates, uses *permStack) *ResolveFailure {
	for _, pkg := range sortedPackageNames(ps.Exported) {
		exp := ps.Exported[pkg]
		for _, ub := range ps.Used[pkg] {
			if isCompatible(cands, exp.Cap, ub.Cap) {
				continue
			}
			mutated := make(map[RequirementID]bool)
			pushUsesPermutation(cands, uses, ub.Path, mutated)
			return newUsesViolation(cands, m, pkg, exp, ub)
		}
	}
	return nil
}

// checkImportVsUsed is Check C: same shape as B but against the imported
// provider, with an additional import-level permutation so the search
// can eventually backtrack on the import decision itself once uses-level
// mutations are exhausted.
func checkImportVsUsed(m *Module, ps *PackageSpace, cands *Candidates, uses, imports *permStack) *ResolveFailure {
	for _, pkg := range sortedPackageNames(ps.Imported) {
		impBlames := ps.Imported[pkg]
		for _, ib := range impBlames {
			for _, ub := range ps.Used[pkg] {
				if isCompatible(cands, ib.Cap, ub.Cap) {
					continue
				}
				mutated := make(map[RequirementID]bool)
				pushUsesPermutation(cands, uses, ub.Path, mutated)
				pushImportPermutationIfNeeded(cands, imports, ib.Path)
				return newUsesViolation(cands, m, pkg, ib, ub)
			}
		}
	}
	return nil
}

// checkRecurseImports is Check D: descend into every import's provider
// module to catch deeper inconsistencies; if a deeper failure produced no
// new permutation on either stack, an import-level permutation of this
// import is pushed here, provided its requirement still has more than one
// candidate and no queued import permutation already moved its head.
func checkRecurseImports(m *Module, ps *PackageSpace, cands *Candidates, spaces Spaces, checked map[ModuleID]bool, uses, imports *permStack, dynamic ModuleID) *ResolveFailure {
	for _, blames := range ps.Imported {
		for _, b := range blames {
			owner, ok := resolveModule(cands, b.Cap.EffectiveOwner())
			if !ok {
				continue
			}
			before := uses.len() + imports.len()
			if f := checkModule(owner, cands, spaces, checked, uses, imports, dynamic); f != nil {
				if uses.len()+imports.len() == before {
					pushImportPermutationIfNeeded(cands, imports, b.Path)
				}
				return f
			}
		}
	}
	return nil
}

// isCompatible implements §4.3's compatibility test: a and b are
// compatible iff the package-sources set of one is a subset of (or equal
// to) the other's.
func isCompatible(cands *Candidates, a, b Cap) bool {
	sa := capSet(packageSources(cands, a))
	sb := capSet(packageSources(cands, b))
	return isSubset(sa, sb) || isSubset(sb, sa)
}

func capSet(caps []Cap) map[CapabilityID]bool {
	out := make(map[CapabilityID]bool, len(caps))
	for _, c := range caps {
		out[c.Decl.ID] = true
	}
	return out
}

func isSubset(a, b map[CapabilityID]bool) bool {
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

// findReqByDeclID recovers the Req (possibly host-wrapped) the Candidate
// Map actually tracks for a declared requirement ID. Blame paths only
// retain the bare *Requirement, so a mutation target is found by scanning
// the tracked requirements for a matching declaration.
func findReqByDeclID(cands *Candidates, id RequirementID) (Req, bool) {
	for _, key := range cands.order {
		r := cands.reqs[key]
		if r.Decl != nil && r.Decl.ID == id {
			return r, true
		}
	}
	return Req{}, false
}

// pushUsesPermutation walks path from its deepest requirement back
// towards the subject, dropping the head candidate of the first
// requirement along the way that still has more than one candidate and
// has not already been mutated for this conflict.
func pushUsesPermutation(cands *Candidates, stack *permStack, path []*Requirement, mutated map[RequirementID]bool) bool {
	for i := len(path) - 1; i >= 0; i-- {
		decl := path[i]
		if mutated[decl.ID] {
			continue
		}
		req, ok := findReqByDeclID(cands, decl.ID)
		if !ok || !cands.HasMultipleCandidates(req) {
			continue
		}
		nc := cands.Copy()
		nc.dropFirst(req)
		mutated[decl.ID] = true
		stack.push(nc)
		return true
	}
	return false
}

// pushImportPermutationIfNeeded targets the first hop of path (the
// import decision itself) and dedupes against permutations already
// queued with a different head candidate for the same requirement.
func pushImportPermutationIfNeeded(cands *Candidates, stack *permStack, path []*Requirement) {
	if len(path) == 0 {
		return
	}
	decl := path[0]
	req, ok := findReqByDeclID(cands, decl.ID)
	if !ok || !cands.HasMultipleCandidates(req) {
		return
	}
	head := cands.candidatesFor(req)[0]
	for _, existing := range stack.items {
		ec := existing.candidatesFor(req)
		if len(ec) > 0 && ec[0].Decl.ID != head.Decl.ID {
			return
		}
	}
	pushPermutationFor(cands, stack, path)
}

func pushPermutationFor(cands *Candidates, stack *permStack, path []*Requirement) {
	if len(path) == 0 {
		return
	}
	req, ok := findReqByDeclID(cands, path[0].ID)
	if !ok || !cands.HasMultipleCandidates(req) {
		return
	}
	nc := cands.Copy()
	nc.dropFirst(req)
	stack.push(nc)
}
