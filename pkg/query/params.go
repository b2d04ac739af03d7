// Package query builds and serializes the nested filter/sort/select structures
// sent to the Payload REST API.
//
// Serialization follows the qs "indices" convention used by the Payload SDK:
//
//	where[and][0][slug][equals]=my-post  ->  where%5Band%5D%5B0%5D%5Bslug%5D%5Bequals%5D=my-post
//
// The same string is used for the upstream request and for cache keys, so a
// cache key can always be traced back to the request it represents.
package query

// Param is a single key/value pair of a Params list.
type Param struct {
	Key   string
	Value any
}

// Params is an ordered set of query parameters.
//
// Order is significant: Encode emits pairs in insertion order, so two Params
// holding the same pairs in a different order serialize differently. Plain Go
// maps nested inside a Params value have no order of their own and are
// encoded with their keys sorted.
type Params []Param

// Add appends a pair and returns the extended list.
func (p Params) Add(key string, value any) Params {
	return append(p, Param{Key: key, Value: value})
}

// Set replaces the value of the first pair named key, or appends it.
func (p Params) Set(key string, value any) Params {
	out := p.Clone()
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Param{Key: key, Value: value})
}

// Get returns the value of the first pair named key.
func (p Params) Get(key string) (any, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Without returns a copy with every pair named in keys removed.
func (p Params) Without(keys ...string) Params {
	if len(p) == 0 {
		return p
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := make(Params, 0, len(p))
	for _, kv := range p {
		if _, ok := drop[kv.Key]; ok {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	copy(out, p)
	return out
}

// IsEmpty reports whether p holds no pairs.
func (p Params) IsEmpty() bool {
	return len(p) == 0
}
