package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/Sternrassler/payload-cache/pkg/payload"
	"github.com/Sternrassler/payload-cache/pkg/query"
)

// Entry is the value stored under a cache key.
type Entry struct {
	// Endpoint is the Payload endpoint the document was fetched from.
	Endpoint string `json:"endpoint"`

	// Query is the serialized query string sent upstream.
	Query string `json:"query,omitempty"`

	// Document is the upstream response body, stamped with its fetch time.
	Document payload.Document `json:"document"`

	// CachedAt is when the entry was written.
	CachedAt time.Time `json:"cached_at"`
}

// Params decodes Query back into parameters that re-encode to the same string.
func (e *Entry) Params() (query.Params, error) {
	return query.ParseQuery(e.Query)
}

func decodeEntry(data []byte) (*Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var entry Entry
	if err := dec.Decode(&entry); err != nil {
		return nil, err
	}
	if entry.Document == nil {
		return nil, errors.New("entry has no document")
	}
	return &entry, nil
}
