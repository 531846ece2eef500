package resolver

import "github.com/pkg/errors"

// permStack is a LIFO of candidate-map snapshots. The driver keeps two:
// uses (high priority, drained first) and import (low priority).
type permStack struct {
	items []*Candidates
	kind  string
	trace *traceLogger
}

func (s *permStack) push(c *Candidates) {
	s.items = append(s.items, c)
	s.trace.permute(s.kind, len(s.items))
}

func (s *permStack) pop() (*Candidates, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	n := len(s.items) - 1
	c := s.items[n]
	s.items = s.items[:n]
	return c, true
}

func (s *permStack) len() int { return len(s.items) }

// search drains the uses stack then the import stack, rebuilding package
// spaces and re-checking consistency for each popped candidate map, until
// one passes or both stacks are exhausted. target is the already
// host-unwrapped module the Space Builder and checker operate on; dynamic
// names a module undergoing a dynamic import, or "" for a normal resolve.
func search(target *Module, seed *Candidates, dynamic ModuleID, trace *traceLogger) (*Candidates, Spaces, *ResolveFailure) {
	uses := &permStack{kind: "uses", trace: trace}
	imports := &permStack{kind: "import", trace: trace}
	uses.push(seed)

	var last *ResolveFailure
	for {
		cur, ok := uses.pop()
		if !ok {
			cur, ok = imports.pop()
		}
		if !ok {
			if last != nil {
				return nil, nil, last
			}
			return nil, nil, &ResolveFailure{
				Kind:    ErrUnsatisfiedMandatory,
				Module:  target,
				Message: "no candidate map satisfies " + target.errString(),
			}
		}

		spaces := make(Spaces)
		build(target, cur, spaces, dynamic)

		if f := checkAll(target, cur, spaces, uses, imports, dynamic); f != nil {
			trace.backtrack(f)
			last = f
			continue
		}
		for _, p := range chosenPairs(cur, target) {
			trace.choose(target, p.req, p.cap)
		}
		return cur, spaces, nil
	}
}

// resolveTarget resolves the module the Space Builder/checker/emitter
// actually operate on: root itself, or (per §4.4) the host chosen for
// root's own host requirement if root is a fragment.
func resolveTarget(root *Module, cands *Candidates) *Module {
	if _, isFrag := root.HostRequirement(); isFrag {
		if host, ok := cands.HostOf(root.ID); ok {
			return host
		}
	}
	return root
}

// blamedModuleID identifies which module a failure should be attributed
// to for the optional-retraction check (§4.4): the fragment itself when
// either the failing module or the failing requirement's declarer is an
// attached fragment, since the optional set is populated with fragments
// (or other hinted optional modules), never with their hosts.
func blamedModuleID(f *ResolveFailure, cands *Candidates) ModuleID {
	if f.Requirement != nil {
		if _, ok := cands.HostOf(f.Requirement.Owner); ok {
			return f.Requirement.Owner
		}
	}
	if f.Module == nil {
		return ""
	}
	return f.Module.ID
}

// driveResolve runs the full outer retry loop of §4.4: seed, populate
// optionals, prepare, search; on failure blamed on a retractable optional,
// drop it and restart with a fresh candidate map.
func driveResolve(env Environment, root *Module, optionalFragments []*Module, trace *traceLogger) (*Module, *Candidates, Spaces, *ResolveFailure) {
	optionals := make(map[ModuleID]*Module, len(optionalFragments))
	for _, f := range optionalFragments {
		optionals[f.ID] = f
	}

	for {
		cands := NewCandidates(env)
		if err := cands.populate(root, make(map[ModuleID]bool)); err != nil {
			rf := asResolveFailure(err)
			if blamed, retryable := retractOptional(rf, cands, optionals); retryable {
				delete(optionals, blamed)
				continue
			}
			return nil, nil, nil, rf
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
			return nil, nil, nil, rf
		}

		target := resolveTarget(root, cands)
		won, spaces, failure := search(target, cands, "", trace)
		if failure == nil {
			return target, won, spaces, nil
		}

		if blamed, retryable := retractOptional(failure, cands, optionals); retryable {
			delete(optionals, blamed)
			continue
		}
		return nil, nil, nil, failure
	}
}

func retractOptional(f *ResolveFailure, cands *Candidates, optionals map[ModuleID]*Module) (ModuleID, bool) {
	blamed := blamedModuleID(f, cands)
	if _, ok := optionals[blamed]; ok {
		return blamed, true
	}
	return "", false
}

func asResolveFailure(err error) *ResolveFailure {
	if rf, ok := errors.Cause(err).(*ResolveFailure); ok {
		return rf
	}
	return &ResolveFailure{Message: err.Error()}
}
