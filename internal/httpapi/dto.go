/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package httpapi

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/no8s/no8s/pkg/types"
)

// namePattern follows the DNS-label convention for resource and type names.
var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Register* only fails on empty tags
	_ = v.RegisterValidation("dnslabel", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	return v
}

type createResourceTypeRequest struct {
	Name        string         `json:"name" validate:"required,dnslabel"`
	Version     string         `json:"version" validate:"required,max=63"`
	Schema      types.Document `json:"schema" validate:"required"`
	Description string         `json:"description"`
	Metadata    types.Document `json:"metadata"`
}

type updateResourceTypeRequest struct {
	Description *string        `json:"description"`
	Status      *string        `json:"status" validate:"omitempty,oneof=active deprecated"`
	Metadata    types.Document `json:"metadata"`
}

type createResourceRequest struct {
	Name        string         `json:"name" validate:"required,dnslabel"`
	TypeName    string         `json:"resource_type_name" validate:"required"`
	TypeVersion string         `json:"resource_type_version" validate:"required"`
	Spec        types.Document `json:"spec"`
}

type updateResourceRequest struct {
	Spec types.Document `json:"spec" validate:"required"`
}

type patchFinalizersRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

type createWebhookRequest struct {
	Name           string            `json:"name" validate:"required,max=63"`
	TypeName       *string           `json:"resource_type_name"`
	TypeVersion    *string           `json:"resource_type_version"`
	URL            string            `json:"webhook_url" validate:"required,url"`
	WebhookType    types.WebhookType `json:"webhook_type" validate:"required,oneof=mutating validating"`
	Operations     []string          `json:"operations" validate:"required,min=1,dive,oneof=CREATE UPDATE DELETE"`
	TimeoutSeconds int               `json:"timeout_seconds" validate:"omitempty,min=1,max=300"`
	FailurePolicy  string            `json:"failure_policy" validate:"omitempty,oneof=Fail Ignore"`
	Ordering       int               `json:"ordering"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}
