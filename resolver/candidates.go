package resolver

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Cap is a capability together with its effective owner: either the
// declaring module itself, or, for a capability contributed by an
// attached fragment, the host it was merged into. Declared and Hosted
// forms are modeled as this one struct (a tagged sum with Host possibly
// nil) rather than via an interface, per the "accessors, not virtual
// dispatch" design: EffectiveOwner and DeclaredOwner are the two explicit
// operations callers need.
type Cap struct {
	Decl *Capability
	Host *Module
}

// EffectiveOwner is the module that the resolver treats as owning this
// capability during resolution: the host, for a hosted wrapper, or the
// declaring module otherwise.
func (c Cap) EffectiveOwner() ModuleID {
	if c.Host != nil {
		return c.Host.ID
	}
	return c.Decl.Owner
}

// DeclaredOwner is retained only for diagnostics and re-source; it is
// always the module whose manifest actually declared the capability.
func (c Cap) DeclaredOwner() ModuleID { return c.Decl.Owner }

func (c Cap) PackageName() string  { return c.Decl.PackageName() }
func (c Cap) Namespace() Namespace { return c.Decl.Namespace }

// Req is the Requirement analogue of Cap.
type Req struct {
	Decl *Requirement
	Host *Module
}

func (r Req) EffectiveOwner() ModuleID {
	if r.Host != nil {
		return r.Host.ID
	}
	return r.Decl.Owner
}
func (r Req) DeclaredOwner() ModuleID { return r.Decl.Owner }

// reqKey identifies a Req in the Candidate Map. Two wrappers over the same
// declaration with different hosts are distinct, so the host ID (if any)
// is part of the key.
func reqKey(r Req) string {
	if r.Host != nil {
		return string(r.Decl.ID) + "|" + string(r.Host.ID)
	}
	return string(r.Decl.ID)
}

// Candidates is the mutable assignment from open requirements to their
// still-viable, ordered candidate sequence; the first element of each
// sequence is the current choice. The map only ever shrinks a sequence,
// never reorders one, and removal is implemented by reslicing so that
// copy() shares backing arrays until a specific entry is actually mutated
// (path-copy on write).
type Candidates struct {
	env Environment

	cands map[string][]Cap // reqKey -> ordered remaining candidates
	reqs  map[string]Req   // reqKey -> the Req itself
	order []string         // insertion order, for deterministic iteration

	// modules holds every module the resolver has discovered while
	// populating candidates, keyed by ID, so Prepare and the Space Builder
	// don't need to keep re-asking the environment.
	modules map[ModuleID]*Module

	// hosted maps a host module's ID to the wrapped requirements/
	// capabilities contributed by fragments attached to it.
	hostedReqs  map[ModuleID][]Req
	hostedCaps  map[ModuleID][]Cap
	hostOf      map[ModuleID]*Module // fragment ID -> its chosen host
}

// NewCandidates constructs an empty Candidate Map bound to env.
func NewCandidates(env Environment) *Candidates {
	return &Candidates{
		env:        env,
		cands:      make(map[string][]Cap),
		reqs:       make(map[string]Req),
		modules:    make(map[ModuleID]*Module),
		hostedReqs: make(map[ModuleID][]Req),
		hostedCaps: make(map[ModuleID][]Cap),
		hostOf:     make(map[ModuleID]*Module),
	}
}

// candidatesFor returns the current ordered candidate sequence for r.
func (c *Candidates) candidatesFor(r Req) []Cap { return c.cands[reqKey(r)] }

// CandidatesFor returns the current ordered candidate sequence for r.
func (c *Candidates) CandidatesFor(r Req) []Cap { return c.candidatesFor(r) }

// copy returns a clone of c whose top-level maps are independent of c's,
// but whose candidate slices are shared until dropFirst mutates one,
// O(requirements) amortized rather than O(requirements + total candidates).
func (c *Candidates) copy() *Candidates {
	nc := &Candidates{
		env:        c.env,
		cands:      make(map[string][]Cap, len(c.cands)),
		reqs:       make(map[string]Req, len(c.reqs)),
		modules:    c.modules, // immutable after population; safe to share
		hostedReqs: c.hostedReqs,
		hostedCaps: c.hostedCaps,
		hostOf:     c.hostOf,
		order:      append([]string(nil), c.order...),
	}
	for k, v := range c.cands {
		nc.cands[k] = v
	}
	for k, v := range c.reqs {
		nc.reqs[k] = v
	}
	return nc
}

// Copy is the exported form of copy(); the consistency checker calls it to
// take the snapshot each permutation is built from.
func (c *Candidates) Copy() *Candidates { return c.copy() }

// dropFirst removes the current (head) candidate of r's sequence. It never
// touches the original backing array; reslicing the head off is safe to
// share with any other Candidates that still holds the pre-drop slice.
func (c *Candidates) dropFirst(r Req) {
	k := reqKey(r)
	cur := c.cands[k]
	if len(cur) == 0 {
		return
	}
	c.cands[k] = cur[1:]
}

// HasMultipleCandidates reports whether r still has more than one viable
// candidate, used by the checker to decide whether a requirement is a
// valid mutation target.
func (c *Candidates) HasMultipleCandidates(r Req) bool { return len(c.cands[reqKey(r)]) > 1 }

// populate seeds and recursively populates the candidate map starting from
// root, per §4.1 steps 1-2. visited guards against cycles across modules.
func (c *Candidates) populate(m *Module, visited map[ModuleID]bool) error {
	if visited[m.ID] {
		return nil
	}
	visited[m.ID] = true
	c.modules[m.ID] = m

	if m.IsWired() {
		// Frozen: declared/wired caps and reqs are taken as-is, nothing to
		// seed from the environment.
		return nil
	}

	var reqs []*Requirement
	if hostReq, isFrag := m.HostRequirement(); isFrag {
		reqs = []*Requirement{hostReq}
	} else {
		for _, r := range m.DeclaredRequirements {
			if r.Namespace != NamespaceHost {
				reqs = append(reqs, r)
			}
		}
	}

	for _, decl := range reqs {
		req := Req{Decl: decl}
		key := reqKey(req)
		if _, seen := c.cands[key]; seen {
			continue
		}

		list := c.env.Candidates(decl, true)
		if len(list) == 0 {
			c.cands[key] = nil
			c.reqs[key] = req
			c.order = append(c.order, key)
			if decl.IsMandatory() {
				return &ResolveFailure{
					Kind:        ErrUnsatisfiedMandatory,
					Module:      m,
					Requirement: decl,
					Message:     fmt.Sprintf("no candidates for mandatory requirement %s of %s", decl.Filter, m.errString()),
				}
			}
			continue
		}

		caps := make([]Cap, len(list))
		seenOwner := make(map[ModuleID]bool, len(list))
		for i, cp := range list {
			caps[i] = Cap{Decl: cp}
			seenOwner[cp.Owner] = true
		}
		c.cands[key] = caps
		c.reqs[key] = req
		c.order = append(c.order, key)

		for _, owner := range sortedModuleIDs(seenOwner) {
			ownerMod, ok := c.env.ModuleOf(owner)
			if !ok {
				continue
			}
			if err := c.populate(ownerMod, visited); err != nil {
				return errors.Wrapf(err, "populating %s", ownerMod.errString())
			}
		}
	}

	return nil
}

// populateOptional populates m the same way as populate, but swallows any
// failure: an optional module (e.g. a hinted fragment) that cannot be
// populated is simply dropped rather than failing the resolve.
func (c *Candidates) populateOptional(m *Module) {
	visited := make(map[ModuleID]bool, len(c.modules)+1)
	for id := range c.modules {
		visited[id] = true
	}
	delete(visited, m.ID)
	if err := c.populate(m, visited); err != nil {
		delete(c.modules, m.ID)
	}
}

// prepare merges every attached fragment into its chosen host (§4.1 step
// 4): each declared cap/req of the fragment (other than its host
// requirement) is wrapped with the host as effective owner, and hosted
// requirements get their own populated candidate entries.
func (c *Candidates) prepare() error {
	moduleIDs := sortedModuleIDs(c.modules)
	for _, id := range moduleIDs {
		m := c.modules[id]
		hostReq, isFrag := m.HostRequirement()
		if !isFrag {
			continue
		}
		caps := c.candidatesFor(Req{Decl: hostReq})
		if len(caps) == 0 {
			// No host found; per §4.1 edge cases, this is only reachable
			// here for optionals (non-optional mandatory host reqs already
			// failed population), and optionals are dropped by
			// populateOptional before prepare runs.
			continue
		}
		host, ok := c.env.ModuleOf(caps[0].Decl.Owner)
		if !ok {
			continue
		}
		c.hostOf[m.ID] = host
	}

	if chain, ok := findHostAttachmentCycle(c.hostOf); ok {
		frag := c.modules[chain[0]]
		return newCircularHostAttachment(frag, idChainStrings(chain))
	}

	for _, id := range moduleIDs {
		m := c.modules[id]
		_, isFrag := m.HostRequirement()
		if !isFrag {
			continue
		}
		host, attached := c.hostOf[m.ID]
		if !attached {
			continue
		}

		for _, decl := range m.DeclaredCapabilities {
			wrapped := Cap{Decl: decl, Host: host}
			if !containsCap(c.hostedCaps[host.ID], decl.ID) {
				c.hostedCaps[host.ID] = append(c.hostedCaps[host.ID], wrapped)
			}
		}
		for _, decl := range m.DeclaredRequirements {
			if decl.Namespace == NamespaceHost {
				continue
			}
			wrapped := Req{Decl: decl, Host: host}
			if containsReq(c.hostedReqs[host.ID], decl.ID) {
				continue
			}
			c.hostedReqs[host.ID] = append(c.hostedReqs[host.ID], wrapped)

			key := reqKey(wrapped)
			if _, seen := c.cands[key]; !seen {
				// Reuse whatever the non-hosted pass already resolved for
				// the same declaration, if present; otherwise query fresh.
				base := c.candidatesFor(Req{Decl: decl})
				if base == nil {
					base = toCaps(c.env.Candidates(decl, true))
				}
				if len(base) == 0 && decl.IsMandatory() {
					return &ResolveFailure{
						Kind:        ErrUnsatisfiedMandatory,
						Module:      m,
						Requirement: decl,
						Message:     fmt.Sprintf("no candidates for mandatory hosted requirement %s of %s", decl.Filter, m.errString()),
					}
				}
				c.cands[key] = base
				c.reqs[key] = wrapped
				c.order = append(c.order, key)
			}
		}
	}
	return nil
}

// findHostAttachmentCycle detects a fragment whose host chain loops back on
// itself: a fragment attached to a host that is itself a fragment attached
// (directly or transitively) back to the first fragment, or a fragment
// attached to its own module. Returns the cycle as a sequence of module IDs
// starting from the fragment where the cycle was first detected.
func findHostAttachmentCycle(hostOf map[ModuleID]*Module) ([]ModuleID, bool) {
	state := make(map[ModuleID]int) // 0 unvisited, 1 in-progress, 2 done
	for _, start := range sortedModuleIDs(hostOf) {
		if state[start] == 2 {
			continue
		}
		var path []ModuleID
		cur := start
		for {
			if state[cur] == 1 {
				// found the cycle; trim path to start at cur's first occurrence
				for i, id := range path {
					if id == cur {
						return path[i:], true
					}
				}
				return append(path, cur), true
			}
			if state[cur] == 2 {
				break
			}
			state[cur] = 1
			path = append(path, cur)
			host, ok := hostOf[cur]
			if !ok {
				break
			}
			if host.ID == cur {
				return append(path, host.ID), true
			}
			cur = host.ID
		}
		for _, id := range path {
			state[id] = 2
		}
	}
	return nil, false
}

// sortedModuleIDs returns m's keys in a stable, deterministic order so that
// population order (and, in turn, which mandatory-requirement failure
// surfaces first, and which host-attachment cycle is detected first) never
// depends on Go's randomized map iteration, per §8's determinism property.
func sortedModuleIDs[V any](m map[ModuleID]V) []ModuleID {
	out := make([]ModuleID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func idChainStrings(ids []ModuleID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toCaps(list []*Capability) []Cap {
	out := make([]Cap, len(list))
	for i, c := range list {
		out[i] = Cap{Decl: c}
	}
	return out
}

func containsCap(list []Cap, id CapabilityID) bool {
	for _, c := range list {
		if c.Decl.ID == id {
			return true
		}
	}
	return false
}

func containsReq(list []Req, id RequirementID) bool {
	for _, r := range list {
		if r.Decl.ID == id {
			return true
		}
	}
	return false
}

// EffectiveCapabilities returns all of m's own declared capabilities (host
// namespace ones included) plus any hosted capabilities attached via
// fragments: the "wrapped
// host" view described in §4.1, exposed as an accessor rather than a
// distinct type.
func (c *Candidates) EffectiveCapabilities(m *Module) []Cap {
	out := make([]Cap, 0, len(m.DeclaredCapabilities)+len(c.hostedCaps[m.ID]))
	for _, d := range m.DeclaredCapabilities {
		out = append(out, Cap{Decl: d})
	}
	out = append(out, c.hostedCaps[m.ID]...)
	return out
}

// EffectiveRequirements returns m's own declared non-host requirements
// plus any hosted requirements attached via fragments.
func (c *Candidates) EffectiveRequirements(m *Module) []Req {
	out := make([]Req, 0, len(m.DeclaredRequirements)+len(c.hostedReqs[m.ID]))
	for _, d := range m.DeclaredRequirements {
		if d.Namespace == NamespaceHost {
			continue
		}
		out = append(out, Req{Decl: d})
	}
	out = append(out, c.hostedReqs[m.ID]...)
	return out
}

// HostOf returns the host a fragment was attached to, if any.
func (c *Candidates) HostOf(fragmentID ModuleID) (*Module, bool) {
	h, ok := c.hostOf[fragmentID]
	return h, ok
}

// Module looks up a module discovered during population.
func (c *Candidates) Module(id ModuleID) (*Module, bool) {
	m, ok := c.modules[id]
	return m, ok
}
