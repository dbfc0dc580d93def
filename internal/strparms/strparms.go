// Package strparms implements the "k1=v1;k2=v2" parameter strings used to
// exchange out of band configuration with the audio runtime.
package strparms

import (
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Params is an ordered set of key/value pairs. Keys without a value (as
// used in get queries) are stored with an empty value.
type Params struct {
	m *orderedmap.OrderedMap[string, string]
}

// New returns an empty parameter set.
func New() *Params {
	return &Params{m: orderedmap.New[string, string]()}
}

// Parse decodes s. Empty segments are ignored and later duplicates replace
// earlier values while keeping the position of the first occurrence.
func Parse(s string) *Params {
	p := New()
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		p.m.Set(k, strings.TrimSpace(v))
	}
	return p
}

// Get returns the value of key.
func (p *Params) Get(key string) (string, bool) {
	return p.m.Get(key)
}

// Has returns true if key is present, with or without a value.
func (p *Params) Has(key string) bool {
	_, ok := p.m.Get(key)
	return ok
}

// GetInt returns the value of key parsed as an integer. Values prefixed
// with 0x are parsed as hex.
func (p *Params) GetInt(key string) (int, bool) {
	v, ok := p.m.Get(key)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return 0, false
	}
	return int(i), true
}

// GetFloat returns the value of key parsed as a float.
func (p *Params) GetFloat(key string) (float64, bool) {
	v, ok := p.m.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Set adds or replaces key.
func (p *Params) Set(key, value string) {
	p.m.Set(key, value)
}

// SetInt adds or replaces key with an integer value.
func (p *Params) SetInt(key string, value int) {
	p.m.Set(key, strconv.Itoa(value))
}

// SetBool adds or replaces key with "true" or "false".
func (p *Params) SetBool(key string, value bool) {
	p.m.Set(key, strconv.FormatBool(value))
}

// Del removes key.
func (p *Params) Del(key string) {
	p.m.Delete(key)
}

// Len returns the number of keys.
func (p *Params) Len() int {
	return p.m.Len()
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	keys := make([]string, 0, p.m.Len())
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Merge copies every pair of other into p.
func (p *Params) Merge(other *Params) {
	if other == nil {
		return
	}
	for pair := other.m.Oldest(); pair != nil; pair = pair.Next() {
		p.m.Set(pair.Key, pair.Value)
	}
}

// String encodes the set back into the wire format. Keys with an empty
// value are rendered bare.
func (p *Params) String() string {
	var b strings.Builder
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		if b.Len() > 0 {
			b.WriteByte(';')
		}
		b.WriteString(pair.Key)
		if pair.Value != "" {
			b.WriteByte('=')
			b.WriteString(pair.Value)
		}
	}
	return b.String()
}
