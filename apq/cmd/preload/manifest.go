/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package preload

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// manifestFormat is the format an Apollo persisted query manifest declares.
const manifestFormat = "apollo-persisted-query-manifest"

// Operation is one entry of a persisted query manifest.  ID is the sha256 of
// Body.
type Operation struct {
	ID   string `json:"id"`
	Body string `json:"body"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Manifest is an Apollo persisted query manifest.
type Manifest struct {
	Format     string      `json:"format"`
	Version    int         `json:"version"`
	Operations []Operation `json:"operations"`
}

// ParseManifest reads a manifest from r.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "while decoding persisted query manifest")
	}
	if m.Format != manifestFormat {
		return nil, errors.Errorf("unsupported manifest format %q, expected %q",
			m.Format, manifestFormat)
	}
	if m.Version != 1 {
		return nil, errors.Errorf("unsupported manifest version %d", m.Version)
	}
	return &m, nil
}
