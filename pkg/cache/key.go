package cache

import (
	"github.com/Sternrassler/payload-cache/pkg/query"
)

// MakeKey derives the cache key for an endpoint and its query parameters.
//
// Without parameters the key is prefix + endpoint; otherwise the serialized
// query is appended after a "-":
//
//	payload:posts-sort=-publishedAt&limit=10
func MakeKey(prefix, endpoint string, params query.Params) string {
	if params.IsEmpty() {
		return prefix + endpoint
	}
	return prefix + endpoint + "-" + params.Encode()
}

// MakeSuffixKey derives a human-readable key such as "payload:posts:my-slug"
// for callers that identify a document by something other than its query.
func MakeSuffixKey(prefix, endpoint, suffix string) string {
	return prefix + endpoint + ":" + suffix
}
