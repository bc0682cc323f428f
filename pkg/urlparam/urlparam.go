// Package urlparam models the query-string half of a navigable location.
//
// Params keeps key/value pairs in the order they appeared in the URL, so a
// round trip through Parse and Encode leaves unrelated parameters where the
// user put them. Updates follow browser URLSearchParams semantics:
//
//	p := urlparam.Parse("sort=price&q=red&page=3")
//	p.Set("q", "red shoes") // replaced in place
//	p.Del("page")
//	p.Encode() // "sort=price&q=red%20shoes"
//
// Values are opaque strings. Malformed escapes are kept verbatim rather than
// rejected.
package urlparam

import (
	"net/url"
	"strings"
)

// Pair is a single key/value entry of a query string.
type Pair struct {
	Key   string
	Value string
}

// Params is an ordered URL parameter set.
// The zero value is an empty set ready to use. Copies of a Params value share
// storage; Clone before mutating a copy.
type Params struct {
	pairs []Pair
}

// Parse parses a raw query string (with or without a leading '?').
// Segments are split on '&' only; a segment without '=' yields an empty value.
func Parse(rawQuery string) Params {
	rawQuery = strings.TrimPrefix(rawQuery, "?")
	var p Params
	if rawQuery == "" {
		return p
	}
	for _, seg := range strings.Split(rawQuery, "&") {
		if seg == "" {
			continue
		}
		key, value, _ := strings.Cut(seg, "=")
		p.pairs = append(p.pairs, Pair{Key: unescape(key), Value: unescape(value)})
	}
	return p
}

// FromPairs builds a parameter set from explicit pairs, preserving order.
func FromPairs(pairs ...Pair) Params {
	p := Params{pairs: make([]Pair, len(pairs))}
	copy(p.pairs, pairs)
	return p
}

// Len returns the number of pairs, counting duplicates.
func (p Params) Len() int {
	return len(p.pairs)
}

// Get returns the first value for key, or "" when absent.
func (p Params) Get(key string) string {
	v, _ := p.Lookup(key)
	return v
}

// Lookup returns the first value for key and whether it was present.
func (p Params) Lookup(key string) (string, bool) {
	for _, kv := range p.pairs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Has reports whether key appears at least once.
func (p Params) Has(key string) bool {
	_, ok := p.Lookup(key)
	return ok
}

// Keys returns the distinct keys in first-seen order.
func (p Params) Keys() []string {
	seen := make(map[string]struct{}, len(p.pairs))
	keys := make([]string, 0, len(p.pairs))
	for _, kv := range p.pairs {
		if _, ok := seen[kv.Key]; ok {
			continue
		}
		seen[kv.Key] = struct{}{}
		keys = append(keys, kv.Key)
	}
	return keys
}

// Set replaces the first occurrence of key and removes any later ones.
// If key is absent, the pair is appended.
func (p *Params) Set(key, value string) {
	idx := -1
	out := p.pairs[:0]
	for _, kv := range p.pairs {
		if kv.Key == key {
			if idx >= 0 {
				continue
			}
			idx = len(out)
			kv.Value = value
		}
		out = append(out, kv)
	}
	p.pairs = out
	if idx < 0 {
		p.pairs = append(p.pairs, Pair{Key: key, Value: value})
	}
}

// Del removes every occurrence of key.
func (p *Params) Del(key string) {
	out := p.pairs[:0]
	for _, kv := range p.pairs {
		if kv.Key != key {
			out = append(out, kv)
		}
	}
	p.pairs = out
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	return FromPairs(p.pairs...)
}

// Equal reports whether both sets hold the same pairs in the same order.
func (p Params) Equal(other Params) bool {
	if len(p.pairs) != len(other.pairs) {
		return false
	}
	for i := range p.pairs {
		if p.pairs[i] != other.pairs[i] {
			return false
		}
	}
	return true
}

// Encode serialises the set in order. Spaces are written as %20.
func (p Params) Encode() string {
	if len(p.pairs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, kv := range p.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(kv.Key))
		b.WriteByte('=')
		b.WriteString(escape(kv.Value))
	}
	return b.String()
}

// String implements fmt.Stringer.
func (p Params) String() string {
	return p.Encode()
}

// WithPath joins path and the encoded set, omitting '?' when the set is empty.
func (p Params) WithPath(path string) string {
	q := p.Encode()
	if q == "" {
		return path
	}
	return path + "?" + q
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func unescape(s string) string {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return out
}
