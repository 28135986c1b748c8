/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package schema

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// A Request represents a GraphQL request.  It makes no guarantees that the
// request is valid.
type Request struct {
	Query         string                 `json:"query"`
	QueryID       string                 `json:"queryId,omitempty"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`

	// Extensions is kept as the raw map the client sent: persisted query
	// details are extracted from it and anything else is left alone.
	Extensions map[string]interface{} `json:"extensions,omitempty"`

	Header http.Header `json:"-"`
}

// DecodeRequests reads a GraphQL POST body.  The body is either a single
// request object or, for batched execution, an array of them; batched
// reports which it was.
func DecodeRequests(r io.Reader) (reqs []*Request, batched bool, err error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, false, errors.Wrap(err, "Not a valid GraphQL request body")
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	d := json.NewDecoder(bytes.NewReader(trimmed))
	d.UseNumber()

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := d.Decode(&reqs); err != nil {
			return nil, true, errors.Wrap(err, "Not a valid GraphQL request body")
		}
		if len(reqs) == 0 {
			return nil, true, errors.New("Empty batch. Please send at least one GraphQL request")
		}
		for i, req := range reqs {
			if req == nil {
				return nil, true, errors.Errorf("Batched request %d is null", i)
			}
		}
		return reqs, true, nil
	}

	req := &Request{}
	if err := d.Decode(req); err != nil {
		return nil, false, errors.Wrap(err, "Not a valid GraphQL request body")
	}
	return []*Request{req}, false, nil
}

// DecodeJSONParam decodes a JSON valued GET parameter such as variables or
// extensions.  An empty value leaves out untouched.
func DecodeJSONParam(name, value string, out *map[string]interface{}) error {
	if value == "" {
		return nil
	}
	d := json.NewDecoder(bytes.NewReader([]byte(value)))
	d.UseNumber()
	if err := d.Decode(out); err != nil {
		return errors.Wrapf(err, "Not a valid GraphQL request: malformed %s", name)
	}
	return nil
}
