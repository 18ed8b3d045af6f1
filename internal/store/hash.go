/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/no8s/no8s/pkg/types"
)

// SpecHash returns the change-detection hash of a spec document. Map keys
// are serialized in sorted order, so the hash is stable across encodings of
// the same document.
func SpecHash(spec types.Document) string {
	if spec == nil {
		spec = types.Document{}
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		// documents originate from JSON; this cannot happen
		panic(err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
