package resolver

// Spaces is the per-resolve-call collection of package spaces, one per
// module reached while building the root's (or a dynamic import target's)
// candidate graph.
type Spaces map[ModuleID]*PackageSpace

type chosenPair struct {
	req Req
	cap Cap
}

// resolveModule looks a module up first among the ones the candidate map
// discovered while populating, then falls back to the environment: wired
// modules reached only via another wired module's Wiring may not have
// been populated.
func resolveModule(cands *Candidates, id ModuleID) (*Module, bool) {
	if m, ok := cands.Module(id); ok {
		return m, true
	}
	return cands.env.ModuleOf(id)
}

// chosenPairs returns, for m, the (requirement, chosen-candidate) pairs
// that drive its package space: from Wiring if m is already wired, plus
// any requirement the Candidate Map has live candidates for (only ever
// populated for an unwired module, or for the single synthetic
// requirement a dynamic import seeds on an otherwise-wired target).
func chosenPairs(cands *Candidates, m *Module) []chosenPair {
	var out []chosenPair
	if m.IsWired() {
		for _, w := range m.Wiring.RequiredWires {
			out = append(out, chosenPair{Req{Decl: w.Requirement}, Cap{Decl: w.Capability}})
		}
	}
	for _, r := range cands.EffectiveRequirements(m) {
		caps := cands.candidatesFor(r)
		if len(caps) == 0 {
			continue
		}
		out = append(out, chosenPair{r, caps[0]})
	}
	return out
}

// exportCandidates returns m's package-namespace export capabilities,
// from Wiring if wired, else from the (possibly host-merged) declared
// set.
func exportCandidates(cands *Candidates, m *Module) []Cap {
	var out []Cap
	if m.IsWired() {
		for _, c := range m.Wiring.Capabilities {
			if c.Namespace == NamespacePackage {
				out = append(out, Cap{Decl: c})
			}
		}
		return out
	}
	for _, c := range cands.EffectiveCapabilities(m) {
		if c.Namespace() == NamespacePackage {
			out = append(out, c)
		}
	}
	return out
}

// build populates spaces[m] (and recursively every transitively chosen
// module's space) following the strict four-phase walk of §4.2. dynamic
// names the module currently undergoing a dynamic import, if any. Phase
// 4 runs for a module iff it is still resolving (unwired) or it is that
// dynamic-import target.
func build(m *Module, cands *Candidates, spaces Spaces, dynamic ModuleID) {
	if _, already := spaces[m.ID]; already {
		return
	}
	ps := newPackageSpace(m)
	spaces[m.ID] = ps

	pairs := chosenPairs(cands, m)

	// Phase 1 (Exported), with substitution: an export elided if M also
	// imports the same package from elsewhere.
	importedPkg := make(map[string]bool)
	for _, p := range pairs {
		if p.req.Decl.Namespace == NamespacePackage {
			importedPkg[p.cap.PackageName()] = true
		}
	}
	for _, c := range exportCandidates(cands, m) {
		pkg := c.PackageName()
		if pkg == "" || importedPkg[pkg] {
			continue
		}
		ps.setExported(pkg, Blame{Cap: c})
	}

	// Phase 2 (Imported / Required).
	for _, p := range pairs {
		switch p.req.Decl.Namespace {
		case NamespacePackage:
			if p.cap.EffectiveOwner() == m.ID {
				// Self-import: elided from space-building entirely (no
				// blame, no uses-merge), though it still becomes a wire.
				continue
			}
			ps.addImported(p.cap.PackageName(), Blame{Cap: p.cap, Path: []*Requirement{p.req.Decl}})
		case NamespaceBundle:
			buildRequired(ps, p.cap, []*Requirement{p.req.Decl}, cands, spaces, make(map[ModuleID]bool))
		}
	}

	// Phase 3 (Recurse) into every chosen candidate's module.
	for _, p := range pairs {
		ownerID := p.cap.EffectiveOwner()
		if ownerID == m.ID {
			continue
		}
		if owner, ok := resolveModule(cands, ownerID); ok {
			build(owner, cands, spaces, dynamic)
		}
	}

	// Phase 4 (Uses), only while M is still resolving (or is the dynamic
	// import target). Per §4.2, every entry in both imported and required
	// seeds its own uses-closure merge, not just the chosen (req, cap)
	// pairs directly: a package pulled in via require-bundle carries its
	// own uses list that must propagate into M's view exactly as an
	// imported package's would.
	if !m.IsWired() || m.ID == dynamic {
		visited := make(map[string]map[ModuleID]bool)
		for _, blames := range ps.Imported {
			for _, b := range blames {
				if b.Cap.EffectiveOwner() == m.ID {
					continue
				}
				mergeUses(ps, b.Cap, b.Path, cands, spaces, visited)
			}
		}
		for _, blames := range ps.Required {
			for _, b := range blames {
				if b.Cap.EffectiveOwner() == m.ID {
					continue
				}
				mergeUses(ps, b.Cap, b.Path, cands, spaces, visited)
			}
		}
	}
}

// buildRequired implements Phase 2's bundle-namespace branch: recurse
// into the provider's exports, appending each as required[pkg] of the
// subject with the original bundle requirement's blame path, then follow
// any reexport-visibility require-bundle edges the provider itself has,
// using that same blame origin.
func buildRequired(subject *PackageSpace, bundleCap Cap, path []*Requirement, cands *Candidates, spaces Spaces, visited map[ModuleID]bool) {
	providerID := bundleCap.EffectiveOwner()
	if visited[providerID] {
		return
	}
	visited[providerID] = true

	provider, ok := resolveModule(cands, providerID)
	if !ok {
		return
	}
	build(provider, cands, spaces, "")

	providerSpace := spaces[providerID]
	if providerSpace == nil {
		return
	}
	for pkg, blame := range providerSpace.Exported {
		subject.addRequired(pkg, Blame{Cap: blame.Cap, Path: path})
	}

	for _, p := range chosenPairs(cands, provider) {
		if p.req.Decl.Namespace == NamespaceBundle && p.req.Decl.IsReexport() {
			buildRequired(subject, p.cap, path, cands, spaces, visited)
		}
	}
}

// packageSources gathers the package capabilities that provide the same
// package name as cap: cap's owner's own, plus any reached transitively
// through the owner's reexport-visibility require-bundle edges. Used
// both by Phase 4's uses-merge and by the checker's compatibility test.
func packageSources(cands *Candidates, cap Cap) []Cap {
	owner, ok := resolveModule(cands, cap.EffectiveOwner())
	if !ok {
		return []Cap{cap}
	}
	pkg := cap.PackageName()

	var out []Cap
	seen := make(map[ModuleID]bool)
	var walk func(m *Module)
	walk = func(m *Module) {
		if seen[m.ID] {
			return
		}
		seen[m.ID] = true
		for _, c := range exportCandidates(cands, m) {
			if c.PackageName() == pkg {
				out = append(out, c)
			}
		}
		for _, p := range chosenPairs(cands, m) {
			if p.req.Decl.Namespace == NamespaceBundle && p.req.Decl.IsReexport() {
				if pm, ok := resolveModule(cands, p.cap.EffectiveOwner()); ok {
					walk(pm)
				}
			}
		}
	}
	walk(owner)
	if len(out) == 0 {
		out = []Cap{cap}
	}
	return out
}

// mergeUses implements Phase 4: for each package source of cap and each
// package u it uses, locate the owner's own view of u and extend subject's
// used[u] with it, recursing into u's own uses. visited is keyed by
// (capability, subject) so two different subjects each get their own
// Blame while a single subject revisiting the same capability within its
// own closure short-circuits (Open Question #3 in SPEC_FULL.md).
func mergeUses(subject *PackageSpace, cap Cap, path []*Requirement, cands *Candidates, spaces Spaces, visited map[string]map[ModuleID]bool) {
	key := string(cap.Decl.ID)
	if visited[key] == nil {
		visited[key] = make(map[ModuleID]bool)
	}
	if visited[key][subject.Module.ID] {
		return
	}
	visited[key][subject.Module.ID] = true

	for _, src := range packageSources(cands, cap) {
		owner, ok := resolveModule(cands, src.EffectiveOwner())
		if !ok {
			continue
		}
		ownerSpace := spaces[owner.ID]
		if ownerSpace == nil {
			continue
		}
		for _, u := range src.Decl.Uses {
			ub, ok := ownerSpace.lookupOwnView(u)
			if !ok {
				continue
			}
			extPath := make([]*Requirement, 0, len(path)+len(ub.Path))
			extPath = append(extPath, path...)
			extPath = append(extPath, ub.Path...)
			extended := Blame{Cap: ub.Cap, Path: extPath}

			subject.addUsed(u, extended)
			mergeUses(subject, ub.Cap, extended.Path, cands, spaces, visited)
		}
	}
}
