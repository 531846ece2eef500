package resolver

// ResolveDynamic implements §4.4's dynamic-import delta: it reuses the
// same search/build/check machinery as a full resolve, scoped to a single
// package requirement, and is never fragment-unwrapped. It returns a nil
// map (not an error) whenever the dynamic import does not apply, per the
// four pre-conditions below. optionalFragments is attached and retracted
// the same way driveResolve does for a full resolve (§6's
// resolve_dynamic(env, root, package_name, optional_fragments) signature).
func ResolveDynamic(env Environment, target *Module, pkg string, optionalFragments []*Module, trace *traceLogger) (WireMap, *ResolveFailure) {
	if !target.IsWired() || pkg == "" {
		return nil, nil
	}
	if targetSources(target, pkg) || targetExports(target, pkg) {
		return nil, nil
	}

	req, list := findDynamicCandidates(env, target, pkg)
	if req == nil || len(list) == 0 {
		return nil, nil
	}

	optionals := make(map[ModuleID]*Module, len(optionalFragments))
	for _, f := range optionalFragments {
		optionals[f.ID] = f
	}

	for {
		cands := NewCandidates(env)
		cands.modules[target.ID] = target
		if err := cands.populateDynamicRequirement(req, list); err != nil {
			rf := asResolveFailure(err)
			if blamed, retryable := retractOptional(rf, cands, optionals); retryable {
				delete(optionals, blamed)
				continue
			}
			return nil, rf
		}

		for _, f := range optionalFragments {
			if _, stillOptional := optionals[f.ID]; stillOptional {
				cands.populateOptional(f)
			}
		}
		if err := cands.prepare(); err != nil {
			rf := asResolveFailure(err)
			if blamed, retryable := retractOptional(rf, cands, optionals); retryable {
				delete(optionals, blamed)
				continue
			}
			return nil, rf
		}

		won, _, failure := search(target, cands, target.ID, trace)
		if failure != nil {
			if blamed, retryable := retractOptional(failure, cands, optionals); retryable {
				delete(optionals, blamed)
				continue
			}
			return nil, failure
		}
		chosen := won.candidatesFor(Req{Decl: req})
		if len(chosen) == 0 {
			return nil, &ResolveFailure{
				Kind:        ErrUnsatisfiedMandatory,
				Module:      target,
				Requirement: req,
				Message:     "dynamic import of " + pkg + " by " + target.errString() + " exhausted all candidates",
			}
		}
		return emitDynamicWire(target, req, chosen[0].Decl), nil
	}
}

func targetSources(target *Module, pkg string) bool {
	if target.Wiring == nil {
		return false
	}
	for _, w := range target.Wiring.RequiredWires {
		if w.Capability != nil && w.Capability.PackageName() == pkg {
			return true
		}
	}
	return false
}

func targetExports(target *Module, pkg string) bool {
	if target.Wiring == nil {
		return false
	}
	for _, c := range target.Wiring.Capabilities {
		if c.Namespace == NamespacePackage && c.PackageName() == pkg {
			return true
		}
	}
	return false
}

// findDynamicCandidates returns the first of target's dynamic-resolution
// package requirements whose environment-supplied candidates include a
// provider of pkg, along with those filtered candidates.
func findDynamicCandidates(env Environment, target *Module, pkg string) (*Requirement, []*Capability) {
	for _, r := range target.Requirements(NamespacePackage) {
		if !r.IsDynamic() {
			continue
		}
		var matched []*Capability
		for _, c := range env.Candidates(r, false) {
			if c.PackageName() == pkg {
				matched = append(matched, c)
			}
		}
		if len(matched) > 0 {
			return r, matched
		}
	}
	return nil, nil
}

// populateDynamicRequirement seeds the Candidate Map for a single
// requirement outside the normal populate() walk, then recurses into
// each candidate's owner module exactly as populate() would.
func (c *Candidates) populateDynamicRequirement(req *Requirement, list []*Capability) error {
	key := reqKey(Req{Decl: req})
	caps := make([]Cap, len(list))
	for i, cp := range list {
		caps[i] = Cap{Decl: cp}
	}
	c.cands[key] = caps
	c.reqs[key] = Req{Decl: req}
	c.order = append(c.order, key)

	visited := make(map[ModuleID]bool)
	for _, cp := range list {
		owner, ok := c.env.ModuleOf(cp.Owner)
		if !ok {
			continue
		}
		if err := c.populate(owner, visited); err != nil {
			return err
		}
	}
	return nil
}
