package resolver_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/modwire/resolver/resolver"
)

// TestResolve_FragmentAttaches covers a fragment whose requirements are
// re-expressed as the host's own: H carries the hosted import wire, and F
// itself gets exactly one wire, the host attachment.
func TestResolve_FragmentAttaches(t *testing.T) {
	a := &resolver.Module{ID: "A", SymbolicName: "A", DeclaredCapabilities: []*resolver.Capability{pkgCap("A-p", "A", "p")}}
	h := &resolver.Module{
		ID: "H", SymbolicName: "H",
		DeclaredCapabilities: []*resolver.Capability{hostCap("H-host", "H")},
	}
	f := &resolver.Module{
		ID: "F", SymbolicName: "F",
		DeclaredRequirements: []*resolver.Requirement{
			hostReq("F-host-req", "F", "H"),
			pkgReq("F-req-p", "F", "p", true),
		},
	}
	env := newFakeEnv(a, h, f)

	wires, failure := resolver.NewResolver().Resolve(env, h, []*resolver.Module{f})
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}

	found := false
	for _, w := range wires["H"] {
		if w.Requirement.ID == "F-req-p" && w.Provider == "A" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected H to carry F's hosted import of p wired to A, got %s", spew.Sdump(wires))
	}

	fwires := wires["F"]
	if len(fwires) != 1 || fwires[0].Requirement.ID != "F-host-req" || fwires[0].Provider != "H" {
		t.Fatalf("expected a single F->H host wire, got %s", spew.Sdump(wires))
	}
}

// TestResolve_OptionalFragmentRetracted is scenario 5: a fragment attaches
// to its host but cannot satisfy one of its own mandatory requirements; the
// driver retracts it and the host resolves alone.
func TestResolve_OptionalFragmentRetracted(t *testing.T) {
	h := &resolver.Module{
		ID: "H", SymbolicName: "H",
		DeclaredCapabilities: []*resolver.Capability{hostCap("H-host", "H")},
	}
	f := &resolver.Module{
		ID: "F", SymbolicName: "F",
		DeclaredRequirements: []*resolver.Requirement{
			hostReq("F-host-req", "F", "H"),
			pkgReq("F-req-p", "F", "p", true), // no provider of p anywhere
		},
	}
	env := newFakeEnv(h, f)

	wires, failure := resolver.NewResolver().Resolve(env, h, []*resolver.Module{f})
	if failure != nil {
		t.Fatalf("expected H to resolve alone once F is retracted, got failure: %v", failure)
	}
	if _, ok := wires["F"]; ok {
		t.Fatalf("expected optional fragment F to be retracted entirely, got %s", spew.Sdump(wires))
	}
}

// TestResolve_FragmentImportConflictFails is Check A: two fragments attached
// to the same host both import the same package from different, pinned
// (single-candidate) providers, so no permutation can resolve it.
func TestResolve_FragmentImportConflictFails(t *testing.T) {
	a := &resolver.Module{ID: "A", SymbolicName: "A", DeclaredCapabilities: []*resolver.Capability{pkgCap("A-p", "A", "p")}}
	b := &resolver.Module{ID: "B", SymbolicName: "B", DeclaredCapabilities: []*resolver.Capability{pkgCap("B-p", "B", "p")}}
	h := &resolver.Module{
		ID: "H", SymbolicName: "H",
		DeclaredCapabilities: []*resolver.Capability{hostCap("H-host", "H")},
	}
	f1 := &resolver.Module{
		ID: "F1", SymbolicName: "F1",
		DeclaredRequirements: []*resolver.Requirement{
			hostReq("F1-host-req", "F1", "H"),
			pkgReq("F1-req-p", "F1", "p", true, "A"),
		},
	}
	f2 := &resolver.Module{
		ID: "F2", SymbolicName: "F2",
		DeclaredRequirements: []*resolver.Requirement{
			hostReq("F2-host-req", "F2", "H"),
			pkgReq("F2-req-p", "F2", "p", true, "B"),
		},
	}
	env := newFakeEnv(a, b, h, f1, f2)

	_, failure := resolver.NewResolver().Resolve(env, h, []*resolver.Module{f1, f2})
	if failure == nil {
		t.Fatalf("expected a fragment import conflict between F1 and F2")
	}
	if failure.Kind != resolver.ErrFragmentImportConflict {
		t.Fatalf("expected FragmentImportConflict, got %s: %s", failure.Kind, failure.Message)
	}
}

// TestResolve_CircularHostAttachmentFails covers two fragments that each
// declare a host capability of their own and require the other as host: no
// retraction can break the cycle, since removing either one still leaves
// it reachable as a candidate host for the other.
func TestResolve_CircularHostAttachmentFails(t *testing.T) {
	x := &resolver.Module{ID: "X", SymbolicName: "X"}
	f1 := &resolver.Module{
		ID: "F1", SymbolicName: "F1",
		DeclaredCapabilities: []*resolver.Capability{hostCap("F1-host", "F1")},
		DeclaredRequirements: []*resolver.Requirement{hostReq("F1-host-req", "F1", "F2")},
	}
	f2 := &resolver.Module{
		ID: "F2", SymbolicName: "F2",
		DeclaredCapabilities: []*resolver.Capability{hostCap("F2-host", "F2")},
		DeclaredRequirements: []*resolver.Requirement{hostReq("F2-host-req", "F2", "F1")},
	}
	env := newFakeEnv(x, f1, f2)

	_, failure := resolver.NewResolver().Resolve(env, x, []*resolver.Module{f1, f2})
	if failure == nil {
		t.Fatalf("expected circular host attachment between F1 and F2 to surface as a failure")
	}
	if failure.Kind != resolver.ErrCircularHostAttachment {
		t.Fatalf("expected CircularHostAttachment, got %s: %s", failure.Kind, failure.Message)
	}
}
