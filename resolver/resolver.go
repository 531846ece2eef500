package resolver

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Resolver is the public entry point: one instance per caller, safe to
// reuse across calls but never to enter concurrently (§5). The candidate
// map and permutation stacks Resolve/ResolveDynamic build are call-local —
// constructed fresh inside driveResolve/ResolveDynamic and discarded on
// return — so there is no per-call state on Resolver itself to clear. The
// only state carried on the struct is the busy flag enter/leave use to
// reject concurrent reentry. This implementation does not memoize
// packageSources between calls (spacebuilder.go recomputes it each time);
// see DESIGN.md for why.
type Resolver struct {
	mu    sync.Mutex
	busy  bool
	trace *traceLogger
}

// NewResolver constructs a Resolver with tracing off.
func NewResolver() *Resolver { return &Resolver{} }

// SetTrace installs a logger for structured trace events (resolver.choose,
// resolver.permute, resolver.backtrack), mirroring the teacher's
// SolveParameters.Trace/TraceLogger pair. Passing nil disables tracing.
func (r *Resolver) SetTrace(l *logrus.Logger) {
	r.trace = newTraceLogger(l)
}

func (r *Resolver) enter() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return fmt.Errorf("resolver: Resolve/ResolveDynamic called concurrently on the same instance")
	}
	r.busy = true
	return nil
}

func (r *Resolver) leave() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

// Resolve performs a full resolve of root against env, attaching any of
// optionalFragments whose host requirement it can satisfy, retracting
// them one at a time on failure per §4.4, and returns the winning wire
// map or the surfaced ResolveFailure.
func (r *Resolver) Resolve(env Environment, root *Module, optionalFragments []*Module) (WireMap, *ResolveFailure) {
	if err := r.enter(); err != nil {
		panic(err)
	}
	defer r.leave()

	target, cands, spaces, failure := driveResolve(env, root, optionalFragments, r.trace)
	if failure != nil {
		return nil, failure
	}
	return emitWires(target, cands, spaces), nil
}

// ResolveDynamic performs a single dynamic-import resolution against an
// already-wired target module, per §4.4's dynamic-import delta and §6's
// resolve_dynamic(env, root, package_name, optional_fragments) signature.
// It returns a nil map (no error) when the import does not apply.
func (r *Resolver) ResolveDynamic(env Environment, target *Module, packageName string, optionalFragments []*Module) (WireMap, *ResolveFailure) {
	if err := r.enter(); err != nil {
		panic(err)
	}
	defer r.leave()

	return ResolveDynamic(env, target, packageName, optionalFragments, r.trace)
}
