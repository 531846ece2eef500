package resolver_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/modwire/resolver/resolver"
)

// TestResolve_RequireBundlePullsInExports covers require-bundle: C requires
// P's whole bundle and ends up with p in its required set, wired via a
// bundle wire to P.
func TestResolve_RequireBundlePullsInExports(t *testing.T) {
	p := &resolver.Module{
		ID: "P", SymbolicName: "P",
		DeclaredCapabilities: []*resolver.Capability{
			pkgCap("P-p", "P", "p"),
			bundleCap("P-bundle", "P", "P"),
		},
	}
	c := &resolver.Module{
		ID: "C", SymbolicName: "C",
		DeclaredRequirements: []*resolver.Requirement{bundleReq("C-req-P", "C", "P", false)},
	}
	env := newFakeEnv(p, c)

	wires, failure := resolver.NewResolver().Resolve(env, c, nil)
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if len(wires["C"]) != 1 || wires["C"][0].Requirement.ID != "C-req-P" || wires["C"][0].Provider != "P" {
		t.Fatalf("expected a single bundle wire C->P, got %s", spew.Sdump(wires))
	}
}

// TestResolve_RequireBundleReexportIsTransitive is Invariant 4: a
// reexport-visibility require-bundle edge propagates the ultimate
// provider's exports through every hop, each blamed on the original
// requirement at the point it was pulled in.
func TestResolve_RequireBundleReexportIsTransitive(t *testing.T) {
	a := &resolver.Module{
		ID: "A", SymbolicName: "A",
		DeclaredCapabilities: []*resolver.Capability{
			pkgCap("A-p", "A", "p"),
			bundleCap("A-bundle", "A", "A"),
		},
	}
	b := &resolver.Module{
		ID: "B", SymbolicName: "B",
		DeclaredCapabilities: []*resolver.Capability{bundleCap("B-bundle", "B", "B")},
		DeclaredRequirements: []*resolver.Requirement{bundleReq("B-req-A", "B", "A", true)},
	}
	c := &resolver.Module{
		ID: "C", SymbolicName: "C",
		DeclaredRequirements: []*resolver.Requirement{bundleReq("C-req-B", "C", "B", false)},
	}
	env := newFakeEnv(a, b, c)

	wires, failure := resolver.NewResolver().Resolve(env, c, nil)
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if len(wires["C"]) != 1 || wires["C"][0].Provider != "B" {
		t.Fatalf("expected C to wire its bundle requirement to B, got %s", spew.Sdump(wires))
	}
	if len(wires["B"]) != 1 || wires["B"][0].Provider != "A" {
		t.Fatalf("expected B's own reexported bundle requirement to wire to A, got %s", spew.Sdump(wires))
	}
}

// TestResolve_UsesViolationThroughRequiredPackageForcesPermutation is
// scenario 3's shape but sourced through require-bundle's required[] map
// instead of a direct import: Q's uses-tagged export of q reaches C via
// require-bundle rather than an import, and Q's own view of p must still
// win out over C's independently-chosen p provider.
func TestResolve_UsesViolationThroughRequiredPackageForcesPermutation(t *testing.T) {
	a1 := &resolver.Module{ID: "A1", SymbolicName: "A1", DeclaredCapabilities: []*resolver.Capability{pkgCap("A1-p", "A1", "p")}}
	a2 := &resolver.Module{ID: "A2", SymbolicName: "A2", DeclaredCapabilities: []*resolver.Capability{pkgCap("A2-p", "A2", "p")}}
	q := &resolver.Module{
		ID: "Q", SymbolicName: "Q",
		DeclaredCapabilities: []*resolver.Capability{
			pkgCap("Q-q", "Q", "q", "p"),
			bundleCap("Q-bundle", "Q", "Q"),
		},
		DeclaredRequirements: []*resolver.Requirement{pkgReq("Q-req-p", "Q", "p", true, "A1")},
	}
	c := &resolver.Module{
		ID: "C", SymbolicName: "C",
		DeclaredRequirements: []*resolver.Requirement{
			bundleReq("C-req-Q", "C", "Q", false),
			pkgReq("C-req-p", "C", "p", true, "A2", "A1"),
		},
	}
	env := newFakeEnv(a1, a2, q, c)

	wires, failure := resolver.NewResolver().Resolve(env, c, nil)
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	var pProvider resolver.ModuleID
	for _, w := range wires["C"] {
		if w.Requirement.ID == "C-req-p" {
			pProvider = w.Provider
		}
	}
	if pProvider != "A1" {
		t.Fatalf("expected C's p-requirement to settle on A1 to match Q's required-package uses view, got %s: %s", pProvider, spew.Sdump(wires))
	}
}
