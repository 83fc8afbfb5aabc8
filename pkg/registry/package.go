package registry

import (
	"bytes"
	"encoding/json"
	"strings"

	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
)

// SourceKind identifies the registry a [Package] came from.
// It serializes as "Crates", "Npm" or "PyPi".
type SourceKind string

const (
	Crates SourceKind = "Crates"
	Npm    SourceKind = "Npm"
	PyPi   SourceKind = "PyPi"
)

// AllSourceKinds lists every supported registry in display order.
var AllSourceKinds = []SourceKind{Crates, Npm, PyPi}

// String returns the serialized name.
func (k SourceKind) String() string { return string(k) }

// Slug returns the lowercase name used on the command line, in URLs and as
// the cache namespace ("crates", "npm", "pypi").
func (k SourceKind) Slug() string { return strings.ToLower(string(k)) }

// ParseSourceKind resolves a registry name case-insensitively.
func ParseSourceKind(s string) (SourceKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range AllSourceKinds {
		if k.Slug() == name {
			return k, nil
		}
	}
	return "", tterrors.New(tterrors.ErrCodeInvalidRegistry, "unknown registry %q (want crates, npm or pypi)", s)
}

// UnmarshalText accepts any casing of a known registry name.
func (k *SourceKind) UnmarshalText(text []byte) error {
	parsed, err := ParseSourceKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Package is a registry entry normalized to the shared model.
// Values are built by registry clients and not modified afterwards.
type Package struct {
	Name     string     `json:"name"`
	URL      string     `json:"url,omitempty"`
	Owner    string     `json:"owner,omitempty"`
	Source   SourceKind `json:"source_kind"`
	Metadata Metadata   `json:"extra_metadata"`
}

// Metadata holds registry-specific fields with their JSON types preserved.
type Metadata map[string]any

// Set stores value under key unless it is empty: nil, "", or an empty
// array or object.
func (m Metadata) Set(key string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		if v == "" {
			return
		}
	case []any:
		if len(v) == 0 {
			return
		}
	case []string:
		if len(v) == 0 {
			return
		}
	case map[string]any:
		if len(v) == 0 {
			return
		}
	}
	m[key] = value
}

// String returns the value under key if it is a string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// MarshalJSON encodes a nil Metadata as an empty object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

// MetadataFromJSON decodes a raw JSON object into Metadata.
// Numbers are kept as json.Number so no precision is lost. Keys listed in
// exclude are dropped, as are nulls and empty strings.
func MetadataFromJSON(raw []byte, exclude ...string) (Metadata, error) {
	m := make(Metadata)
	if len(bytes.TrimSpace(raw)) == 0 {
		return m, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, tterrors.Wrap(tterrors.ErrCodeParse, err, "decode metadata")
	}

	for k, v := range obj {
		if contains(exclude, k) {
			continue
		}
		m.Set(k, v)
	}
	return m, nil
}

// PickOwner returns the first non-empty owner candidate.
// Registries list owner sources in order of preference.
func PickOwner(candidates ...string) string {
	return FirstNonEmpty(candidates...)
}

// FirstNonEmpty returns the first candidate that is not blank, trimmed.
func FirstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
