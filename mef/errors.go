// Package mef provides a typed, classification-aware model of
// multi-extension scientific containers.
package mef

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrContainerFormat = errors.New("malformed container")
	ErrClassification  = errors.New("cannot classify source")
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrDimension       = errors.New("dimension mismatch")
	ErrAttributeAccess = errors.New("unknown attribute")
	ErrTypeConstraint  = errors.New("type constraint violated")
	ErrKeyNotFound     = errors.New("keyword not found")
	ErrClosed          = errors.New("dataset is closed")
	ErrFileExists      = errors.New("file already exists")
)

// ShapeMismatchError reports two array shapes that were required to agree.
type ShapeMismatchError struct {
	Op   string
	Want []int
	Got  []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: %v: expected %v, got %v", e.Op, ErrShapeMismatch, e.Want, e.Got)
}

func (e *ShapeMismatchError) Unwrap() error {
	return ErrShapeMismatch
}

// ClassificationError reports that zero or several variants claimed a
// source. Failures holds every error raised while matching.
type ClassificationError struct {
	Path     string
	Matches  []string
	Failures []error
}

func (e *ClassificationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrClassification.Error())
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if len(e.Matches) == 0 {
		b.WriteString(": no variant matches")
	} else {
		fmt.Fprintf(&b, ": conflicting variants %s", strings.Join(e.Matches, ", "))
	}
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %v", f)
	}
	return b.String()
}

func (e *ClassificationError) Unwrap() []error {
	return append([]error{ErrClassification}, e.Failures...)
}

func shapeMismatch(op string, want, got []int) error {
	return &ShapeMismatchError{Op: op, Want: append([]int(nil), want...), Got: append([]int(nil), got...)}
}
