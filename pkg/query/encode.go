package query

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

const upperhex = "0123456789ABCDEF"

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Encode serializes p as a query string without the leading "?".
//
// Nested Params, maps and slices become bracketed keys; nil becomes "key=";
// empty objects and arrays emit nothing. Functions and channels are not
// supported and fall back to their fmt representation.
func (p Params) Encode() string {
	var pairs []string
	for _, kv := range p {
		pairs = appendPairs(pairs, kv.Key, kv.Value)
	}
	return strings.Join(pairs, "&")
}

// String implements fmt.Stringer.
func (p Params) String() string {
	return p.Encode()
}

func appendPairs(dst []string, prefix string, v any) []string {
	switch val := v.(type) {
	case nil:
		return append(dst, Escape(prefix)+"=")
	case Params:
		for _, kv := range val {
			dst = appendPairs(dst, prefix+"["+kv.Key+"]", kv.Value)
		}
		return dst
	case string:
		return append(dst, Escape(prefix)+"="+Escape(val))
	case bool:
		return append(dst, Escape(prefix)+"="+strconv.FormatBool(val))
	case json.Number:
		return append(dst, Escape(prefix)+"="+Escape(val.String()))
	case time.Time:
		return append(dst, Escape(prefix)+"="+Escape(val.UTC().Format(isoMillis)))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return append(dst, Escape(prefix)+"=")
		}
		return appendPairs(dst, prefix, rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return append(dst, Escape(prefix)+"="+strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return append(dst, Escape(prefix)+"="+strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32:
		return append(dst, Escape(prefix)+"="+strconv.FormatFloat(rv.Float(), 'f', -1, 32))
	case reflect.Float64:
		return append(dst, Escape(prefix)+"="+strconv.FormatFloat(rv.Float(), 'f', -1, 64))
	case reflect.String:
		return append(dst, Escape(prefix)+"="+Escape(rv.String()))
	case reflect.Bool:
		return append(dst, Escape(prefix)+"="+strconv.FormatBool(rv.Bool()))
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			dst = appendPairs(dst, prefix+"["+strconv.Itoa(i)+"]", rv.Index(i).Interface())
		}
		return dst
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		values := make(map[string]reflect.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, k)
			values[k] = iter.Value()
		}
		sort.Strings(keys)
		for _, k := range keys {
			dst = appendPairs(dst, prefix+"["+k+"]", values[k].Interface())
		}
		return dst
	default:
		return append(dst, Escape(prefix)+"="+Escape(fmt.Sprint(v)))
	}
}

// Escape percent-encodes s per RFC 3986, leaving only unreserved characters
// (ALPHA / DIGIT / "-" / "." / "_" / "~") as-is.
func Escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
