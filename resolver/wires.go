package resolver

// WireMap is the Wire Emitter's output: every resolving module's ordered
// wire list, keyed by module ID.
type WireMap map[ModuleID][]*Wire

// emitWires converts the winning candidate map and package spaces into a
// per-module wire list (§4.5). Ordering within a module's list is package
// wires, then bundle wires, then generic-capability wires, stable within
// each group by declaration order. Hosted wrappers are unwrapped: the
// emitted Wire carries the declared Requirement and Capability, and its
// Provider is the capability's declaring module. A requirement merged in
// from a fragment is listed under its host, with the host as Requirer.
func emitWires(target *Module, cands *Candidates, spaces Spaces) WireMap {
	out := make(WireMap)
	visited := make(map[ModuleID]bool)
	emitModule(target, cands, spaces, out, visited)
	emitFragmentHostWires(cands, out)
	return out
}

func emitModule(m *Module, cands *Candidates, spaces Spaces, out WireMap, visited map[ModuleID]bool) {
	if visited[m.ID] {
		return
	}
	visited[m.ID] = true

	if m.IsWired() {
		out[m.ID] = append(out[m.ID], m.Wiring.RequiredWires...)
		for _, w := range m.Wiring.RequiredWires {
			if owner, ok := resolveModule(cands, w.Provider); ok {
				emitModule(owner, cands, spaces, out, visited)
			}
		}
		return
	}

	pairs := chosenPairs(cands, m)
	var pkgWires, bundleWires, genericWires []*Wire
	for _, p := range pairs {
		w := &Wire{
			Requirer:    m.ID,
			Requirement: p.req.Decl,
			Provider:    p.cap.DeclaredOwner(),
			Capability:  p.cap.Decl,
		}
		switch p.req.Decl.Namespace {
		case NamespacePackage:
			pkgWires = append(pkgWires, w)
		case NamespaceBundle:
			bundleWires = append(bundleWires, w)
		default:
			genericWires = append(genericWires, w)
		}
	}
	out[m.ID] = append(out[m.ID], pkgWires...)
	out[m.ID] = append(out[m.ID], bundleWires...)
	out[m.ID] = append(out[m.ID], genericWires...)

	for _, p := range pairs {
		if owner, ok := resolveModule(cands, p.cap.EffectiveOwner()); ok {
			emitModule(owner, cands, spaces, out, visited)
		}
	}
}

// emitFragmentHostWires adds, for every attached fragment, a host wire
// from the fragment to its host using the fragment's declared host
// requirement and the host's matching host capability.
func emitFragmentHostWires(cands *Candidates, out WireMap) {
	for fragID, host := range cands.hostOf {
		frag, ok := cands.Module(fragID)
		if !ok {
			continue
		}
		hostReq, isFrag := frag.HostRequirement()
		if !isFrag {
			continue
		}
		hostCaps := cands.candidatesFor(Req{Decl: hostReq})
		var hostCap *Capability
		for _, c := range hostCaps {
			if c.Decl.Owner == host.ID {
				hostCap = c.Decl
				break
			}
		}
		if hostCap == nil {
			for _, c := range host.Capabilities(NamespaceHost) {
				hostCap = c
				break
			}
		}
		out[fragID] = append(out[fragID], &Wire{
			Requirer:    fragID,
			Requirement: hostReq,
			Provider:    host.ID,
			Capability:  hostCap,
		})
	}
}

// emitDynamicWire builds the single-package wire list §4.4's dynamic
// delta (b) calls for: the target is never fragment-unwrapped, and only
// the one dynamically-resolved package wire is emitted for it.
func emitDynamicWire(target *Module, req *Requirement, cap *Capability) WireMap {
	return WireMap{
		target.ID: {{
			Requirer:    target.ID,
			Requirement: req,
			Provider:    cap.Owner,
			Capability:  cap,
		}},
	}
}
