package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// FetchedAtField is the top-level document field stamped with the unix
// millisecond time the document was fetched from Payload.
const FetchedAtField = "fetchedAt"

// Document is a decoded Payload response body: either the paginated list
// envelope ({docs, totalDocs, totalPages, ...}) or a single object.
// Numbers are kept as json.Number.
type Document map[string]any

// DecodeDocument reads a single JSON object from r.
func DecodeDocument(r io.Reader) (Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("document is null")
	}
	return doc, nil
}

// Docs returns the docs array of a list envelope.
func (d Document) Docs() ([]any, bool) {
	raw, ok := d["docs"]
	if !ok {
		return nil, false
	}
	docs, ok := raw.([]any)
	return docs, ok
}

// IsList reports whether d is a paginated list envelope.
func (d Document) IsList() bool {
	_, ok := d.Docs()
	return ok
}

// IsEmpty reports whether d is a list envelope with no matching documents.
// Single-object documents are never empty.
func (d Document) IsEmpty() bool {
	docs, ok := d.Docs()
	return ok && len(docs) == 0
}

// TotalPages returns the envelope's totalPages, or 1 when absent.
func (d Document) TotalPages() int {
	if n, ok := intValue(d["totalPages"]); ok && n > 0 {
		return int(n)
	}
	return 1
}

// Stamp records t as the fetch time of d.
func (d Document) Stamp(t time.Time) {
	d[FetchedAtField] = t.UnixMilli()
}

// FetchedAt returns the time recorded by Stamp.
func (d Document) FetchedAt() (time.Time, bool) {
	ms, ok := intValue(d[FetchedAtField])
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		return int64(f), err == nil
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Page is the typed form of the Payload list envelope.
type Page[T any] struct {
	Docs          []T  `json:"docs"`
	HasNextPage   bool `json:"hasNextPage"`
	HasPrevPage   bool `json:"hasPrevPage"`
	Limit         int  `json:"limit"`
	NextPage      *int `json:"nextPage"`
	Page          *int `json:"page"`
	PagingCounter *int `json:"pagingCounter"`
	PrevPage      *int `json:"prevPage"`
	TotalDocs     int  `json:"totalDocs"`
	TotalPages    int  `json:"totalPages"`
}

// Validator is implemented by decoded types that check their own invariants.
type Validator interface {
	Validate() error
}

// Decode converts doc into T. Shape mismatches and Validator failures are
// returned as *ValidationError.
func Decode[T any](doc Document) (T, error) {
	var out T

	raw, err := json.Marshal(doc)
	if err != nil {
		return out, &ValidationError{Err: fmt.Errorf("encode document: %w", err)}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &ValidationError{Err: err}
	}
	if err := validate(&out); err != nil {
		return out, err
	}
	return out, nil
}

// DecodePage converts a list envelope into a typed Page, validating each doc.
func DecodePage[T any](doc Document) (*Page[T], error) {
	if !doc.IsList() {
		return nil, &ValidationError{Err: errors.New("document is not a list envelope")}
	}

	page, err := Decode[Page[T]](doc)
	if err != nil {
		return nil, err
	}
	for i := range page.Docs {
		if err := validate(&page.Docs[i]); err != nil {
			return nil, fmt.Errorf("docs[%d]: %w", i, err)
		}
	}
	return &page, nil
}

func validate(v any) error {
	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return &ValidationError{Err: err}
		}
	}
	return nil
}
