package srtree

import "errors"

// Construction errors. They are returned before any proposal runs and are fatal for the run.
var (
	ErrMalformedTree        = errors.New("malformed tree")
	ErrRangeDefinition      = errors.New("invalid range definition")
	ErrNotDirectAncestor    = errors.New("first occurrence is not a sampled ancestor")
	ErrUnmatchedOccurrence  = errors.New("unmatched first/last occurrence")
	ErrSingleFossilConflict = errors.New("range first and last occurrences differ")
	ErrShapeMismatch        = errors.New("trees have different node counts")
)

// ErrInvariantViolation reports a tree or range state that correct bookkeeping never produces.
// Callers must abort the current run when they see it.
var ErrInvariantViolation = errors.New("tree invariant violation")

// ErrAnchorNotInRange is returned by Range.AddAfter when the anchor is not a range member.
var ErrAnchorNotInRange = errors.New("anchor node is not in range")

// ErrNoSnapshot is the panic value of Restore when there is nothing to roll back to.
var ErrNoSnapshot = errors.New("restore without a stored snapshot")
