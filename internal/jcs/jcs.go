// Package jcs produces the RFC 8785 JSON Canonicalization Scheme encoding
// this node's signatures are computed and verified over. It is a thin
// wrapper over encoding/json plus a third-party canonicalizer so every
// caller gets identical bytes for identical values regardless of struct
// field declaration order or map iteration order.
package jcs

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical marshals v with encoding/json and then rewrites it into RFC 8785
// canonical form: sorted object keys, no insignificant whitespace, and
// canonical number formatting.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: canonicalize: %w", err)
	}
	return out, nil
}
