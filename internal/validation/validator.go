/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package validation validates resource specs against the OpenAPI schema of
// their resource type, and the schemas themselves at registration time.
package validation

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/pkg/errors"

	"github.com/no8s/no8s/pkg/types"
)

// Compile parses a stored schema document into a validatable schema.
func Compile(schema types.Document) (*openapi3.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding schema")
	}
	compiled := &openapi3.Schema{}
	if err := compiled.UnmarshalJSON(raw); err != nil {
		return nil, errors.Wrap(err, "error parsing schema")
	}
	return compiled, nil
}

// ValidateSchema checks that the given document is itself a well-formed
// OpenAPI schema; called when a resource type is registered.
func ValidateSchema(ctx context.Context, schema types.Document) error {
	compiled, err := Compile(schema)
	if err != nil {
		return types.ValidationErrors{{Path: "", Message: err.Error()}}
	}
	if err := compiled.Validate(ctx); err != nil {
		return types.ValidationErrors{{Path: "", Message: err.Error()}}
	}
	return nil
}

// ValidateSpec validates the spec document against a compiled schema,
// collecting all violations instead of stopping at the first. Schema defaults
// are applied to the document in place.
func ValidateSpec(compiled *openapi3.Schema, spec types.Document) error {
	err := compiled.VisitJSON(map[string]any(spec),
		openapi3.MultiErrors(),
		// VisitAsRequest is required for DefaultsSet to take effect.
		openapi3.VisitAsRequest(),
		openapi3.DefaultsSet(func() {}),
	)
	if err == nil {
		return nil
	}
	return toValidationErrors(err)
}

func toValidationErrors(err error) types.ValidationErrors {
	var out types.ValidationErrors
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			out = append(out, toValidationError(e))
		}
		return out
	}
	return types.ValidationErrors{toValidationError(err)}
}

func toValidationError(err error) types.ValidationError {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		path := ""
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			path = "/" + strings.Join(ptr, "/")
		}
		return types.ValidationError{Path: path, Message: schemaErr.Reason}
	}
	return types.ValidationError{Path: "", Message: err.Error()}
}
