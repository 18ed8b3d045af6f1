/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package admission

import (
	"encoding/json"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/no8s/no8s/pkg/types"
)

// patchOperation is a single RFC 6902 operation as returned by a mutating
// webhook. Paths are interpreted relative to the resource document; a leading
// /spec segment is stripped so that the operation applies to the spec.
// Paths without the /spec prefix are accepted as spec-relative for backwards
// compatibility.
type patchOperation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

func normalizePatchPath(path string, webhook string, log logr.Logger) string {
	if path == "/spec" {
		return ""
	}
	if strings.HasPrefix(path, "/spec/") {
		return strings.TrimPrefix(path, "/spec")
	}
	log.Info("deprecated spec-relative patch path; prefix paths with /spec", "webhook", webhook, "path", path)
	return path
}

// applyPatches applies a mutating webhook's patch operations to the spec and
// returns the mutated document. The input spec is not modified.
func applyPatches(spec types.Document, rawPatches []json.RawMessage, webhook string, log logr.Logger) (types.Document, error) {
	ops := make([]patchOperation, 0, len(rawPatches))
	for _, raw := range rawPatches {
		var op patchOperation
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, types.NewAdmissionDeniedError("invalid patch from webhook %s: %s", webhook, err)
		}
		op.Path = normalizePatchPath(op.Path, webhook, log)
		if op.From != "" {
			op.From = normalizePatchPath(op.From, webhook, log)
		}
		ops = append(ops, op)
	}

	encoded, err := json.Marshal(ops)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding patch operations")
	}
	patch, err := jsonpatch.DecodePatch(encoded)
	if err != nil {
		return nil, types.NewAdmissionDeniedError("invalid patch from webhook %s: %s", webhook, err)
	}

	doc, err := json.Marshal(spec)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding spec")
	}
	mutated, err := patch.Apply(doc)
	if err != nil {
		return nil, types.NewAdmissionDeniedError("invalid patch from webhook %s: %s", webhook, err)
	}
	var out types.Document
	if err := json.Unmarshal(mutated, &out); err != nil {
		return nil, types.NewAdmissionDeniedError("invalid patch from webhook %s: %s", webhook, err)
	}
	return out, nil
}
