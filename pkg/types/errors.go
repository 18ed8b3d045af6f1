/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// NotFoundError indicates that a referenced object does not exist.
type NotFoundError struct {
	Kind string
	Key  string
}

func NewNotFoundError(kind string, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func IsNotFound(err error) bool {
	target := &NotFoundError{}
	return errors.As(err, &target)
}

// ConflictError indicates a uniqueness violation (for example a duplicate
// resource name).
type ConflictError struct {
	Message string
}

func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return e.Message
}

func IsConflict(err error) bool {
	target := &ConflictError{}
	if errors.As(err, &target) {
		return true
	}
	return IsFinalizersPresent(err)
}

// FinalizersPresentError indicates that a hard delete was attempted while
// finalizers remain on the resource.
type FinalizersPresentError struct {
	ResourceID int64
	Finalizers []string
}

func (e *FinalizersPresentError) Error() string {
	return fmt.Sprintf("resource %d cannot be hard-deleted: finalizers present [%s]", e.ResourceID, strings.Join(e.Finalizers, ", "))
}

func IsFinalizersPresent(err error) bool {
	target := &FinalizersPresentError{}
	return errors.As(err, &target)
}

// ValidationError describes a single schema violation.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationErrors aggregates schema violations for one document.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		path := v.Path
		if path == "" {
			path = "(root)"
		}
		parts[i] = path + ": " + v.Message
	}
	return strings.Join(parts, "; ")
}

func IsValidation(err error) bool {
	var target ValidationErrors
	return errors.As(err, &target)
}

// AdmissionDeniedError indicates that an admission webhook denied the write,
// or that a webhook with failure policy 'Fail' could not be reached.
type AdmissionDeniedError struct {
	Message string
}

func NewAdmissionDeniedError(format string, args ...any) *AdmissionDeniedError {
	return &AdmissionDeniedError{Message: fmt.Sprintf(format, args...)}
}

func (e *AdmissionDeniedError) Error() string {
	return e.Message
}

func IsAdmissionDenied(err error) bool {
	target := &AdmissionDeniedError{}
	return errors.As(err, &target)
}

// NoReconcilerError indicates that no reconciler is registered for a
// resource type.
type NoReconcilerError struct {
	TypeName string
}

func (e *NoReconcilerError) Error() string {
	return fmt.Sprintf("no reconciler registered for resource type %s", e.TypeName)
}

func IsNoReconciler(err error) bool {
	target := &NoReconcilerError{}
	return errors.As(err, &target)
}

// ResourceTypeConflictError indicates that two reconcilers claim the same
// resource type; this is fatal at startup.
type ResourceTypeConflictError struct {
	TypeName string
	Claimed  string
	Claimant string
}

func (e *ResourceTypeConflictError) Error() string {
	return fmt.Sprintf("resource type %s is already claimed by reconciler %s; cannot register %s", e.TypeName, e.Claimed, e.Claimant)
}
