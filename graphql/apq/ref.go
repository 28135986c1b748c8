/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package apq implements Automatic Persisted Queries: clients send the sha256
// of a query instead of its text, and the text is stored the first time a
// client sends both so that later hash-only requests can be resolved.
//
// Protocol, as implemented by Apollo clients:
//
//	{
//	  "extensions": {
//	    "persistedQuery": { "version": 1, "sha256Hash": "<64 hex chars>" }
//	  }
//	}
//
// A hash-only request for an unknown hash gets a PersistedQueryNotFound error,
// and the client retries once with the full query attached.
package apq

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	// ExtensionKey is the request extension carrying the persisted query reference.
	ExtensionKey = "persistedQuery"

	// CacheTagPrefix namespaces all cache tags produced by this package.
	CacheTagPrefix = "apq:"

	// DefaultTagLength is the number of hash characters kept in a cache tag.
	// Hashes sharing a prefix share a tag, so an invalidation can clear more
	// than one negative entry.
	DefaultTagLength = 9

	hashLength = sha256.Size * 2
)

// Ref identifies a persisted query.  The zero Ref means no reference.
type Ref struct {
	Version int
	Hash    string
}

// IsZero reports whether r is the absent reference.
func (r Ref) IsZero() bool {
	return r.Version == 0 && r.Hash == ""
}

// QueryID returns the "<version>:<hash>" form of r.
func (r Ref) QueryID() string {
	return strconv.Itoa(r.Version) + ":" + r.Hash
}

func (r Ref) String() string {
	return r.QueryID()
}

// Matches reports whether query hashes to r.Hash.
func (r Ref) Matches(query string) bool {
	return Hash(query) == r.Hash
}

// Hash returns the lowercase hex sha256 of query, byte for byte.
func Hash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// ExtractRef returns the persisted query reference held in a request's
// extensions.  A missing or malformed extension is not an error: the request
// is just not an APQ request.
func ExtractRef(extensions map[string]interface{}) (Ref, bool) {
	raw, ok := extensions[ExtensionKey]
	if !ok {
		return Ref{}, false
	}
	pq, ok := raw.(map[string]interface{})
	if !ok {
		return Ref{}, false
	}

	version, ok := asVersion(pq["version"])
	if !ok {
		return Ref{}, false
	}
	hash, ok := pq["sha256Hash"].(string)
	if !ok || !validHash(hash) {
		return Ref{}, false
	}
	return Ref{Version: version, Hash: hash}, true
}

// ParseQueryID parses a "<version>:<hash>" query id.  Anything else, including
// a non numeric version or a hash of the wrong shape, is no match.
func ParseQueryID(id string) (Ref, bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 2 {
		return Ref{}, false
	}
	version, err := strconv.Atoi(parts[0])
	if err != nil || version <= 0 {
		return Ref{}, false
	}
	if !validHash(parts[1]) {
		return Ref{}, false
	}
	return Ref{Version: version, Hash: parts[1]}, true
}

// CacheTag returns the cache tag for hash, keeping the first length characters
// of it.  A length outside 1..64 keeps the default of 9.
func CacheTag(hash string, length int) string {
	if length <= 0 || length > hashLength {
		length = DefaultTagLength
	}
	if len(hash) < length {
		length = len(hash)
	}
	return CacheTagPrefix + hash[:length]
}

func validHash(hash string) bool {
	if len(hash) != hashLength {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// asVersion accepts the number shapes a JSON decoder can produce, as long as
// they hold a positive integer.
func asVersion(v interface{}) (int, bool) {
	var n int64
	switch v := v.(type) {
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, false
		}
		n = i
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt32 {
			return 0, false
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	default:
		return 0, false
	}
	if n <= 0 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}
