package resolver

import (
	"bytes"
	"fmt"
)

// ErrorKind distinguishes the four ways a resolve can fail, per §7.
type ErrorKind string

const (
	ErrUnsatisfiedMandatory ErrorKind = "UnsatisfiedMandatoryRequirement"
	ErrUsesViolation        ErrorKind = "UsesConstraintViolation"
	ErrFragmentImportConflict ErrorKind = "FragmentImportConflict"
	ErrCircularHostAttachment ErrorKind = "CircularHostAttachment"
)

// ResolveFailure is raised by the checker and, if it survives every
// permutation, surfaces from Resolve/ResolveDynamic. Message carries the
// formatted blame chain.
type ResolveFailure struct {
	Kind        ErrorKind
	Module      *Module
	Requirement *Requirement
	Message     string

	// blameA/blameB, when set, hold the two dependency chains already
	// rendered into Message; nothing in this package reads them back.
	blameA, blameB *blameChain
}

func (f *ResolveFailure) Error() string {
	if f == nil {
		return ""
	}
	return f.Message
}

// blameChain is a human-readable path from a subject module through the
// imports/requires that led to a capability being visible, paired with
// the label of that capability's provider for diagnostic rendering.
type blameChain struct {
	owner string // symbolic name@version of the capability's provider
	path  []string
}

func (b *blameChain) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "  %s", b.owner)
	for _, step := range b.path {
		fmt.Fprintf(&buf, "\n    via %s", step)
	}
	return buf.String()
}

func newUsesViolation(cands *Candidates, subject *Module, pkg string, a, b Blame) *ResolveFailure {
	ba := blameOf(cands, pkg, a)
	bb := blameOf(cands, pkg, b)
	msg := fmt.Sprintf(
		"uses constraint violation in %s: package %q is visible from two incompatible providers\n%s\n%s",
		subject.errString(), pkg, ba.String(), bb.String(),
	)
	return &ResolveFailure{
		Kind:    ErrUsesViolation,
		Module:  subject,
		Message: msg,
		blameA:  ba,
		blameB:  bb,
	}
}

func newFragmentImportConflict(cands *Candidates, subject *Module, pkg string, a, b Blame) *ResolveFailure {
	ba := blameOf(cands, pkg, a)
	bb := blameOf(cands, pkg, b)
	msg := fmt.Sprintf(
		"fragment import conflict in %s: package %q imported from two different providers\n%s\n%s",
		subject.errString(), pkg, ba.String(), bb.String(),
	)
	return &ResolveFailure{
		Kind:    ErrFragmentImportConflict,
		Module:  subject,
		Message: msg,
		blameA:  ba,
		blameB:  bb,
	}
}

func newCircularHostAttachment(fragment *Module, chain []string) *ResolveFailure {
	return &ResolveFailure{
		Kind:    ErrCircularHostAttachment,
		Module:  fragment,
		Message: fmt.Sprintf("circular host attachment involving %s: %v", fragment.errString(), chain),
	}
}

// moduleLabel resolves id to its owning *Module via cands and renders it
// as "symbolic-name@version" (errString()), falling back to the bare ID
// when cands is nil or the module isn't known to it. Per §7, diagnostics
// must name providers by symbolic name and version, not their opaque ID.
func moduleLabel(cands *Candidates, id ModuleID) string {
	if cands != nil {
		if m, ok := cands.Module(id); ok {
			return m.errString()
		}
	}
	return string(id)
}

func blameOf(cands *Candidates, pkg string, b Blame) *blameChain {
	owner := "(unknown)"
	if b.Cap.Decl != nil {
		owner = moduleLabel(cands, b.Cap.EffectiveOwner())
	}
	bc := &blameChain{owner: owner}
	for _, r := range b.Path {
		bc.path = append(bc.path, moduleLabel(cands, r.Owner)+" requires "+string(r.Namespace))
	}
	return bc
}
