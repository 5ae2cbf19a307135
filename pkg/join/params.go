package join

import "context"

// Document is the map shape encoding/json produces for a JSON object. Local
// documents are mutated in place through their map reference.
type Document = map[string]any

// FetchFunc produces the source collection for one join call. It may return a
// single document or a slice of documents, blocking as long as it needs to;
// cancellation and timeouts belong to the function itself via ctx. The engine
// never retries: a fetch error aborts the call with the local collection
// untouched. The metadata value is the one passed to Join, forwarded
// unmodified.
type FetchFunc func(ctx context.Context, metadata any) (any, error)

// Params describes one join operation.
type Params struct {
	// Local is the collection to attach results onto: a Document, a
	// []Document, or a []any of documents.
	Local any

	// From fetches the source collection. Called exactly once per join,
	// regardless of the size of Local.
	From FetchFunc

	// LocalField is the dotted path of the key on each local document.
	LocalField string

	// FromField is the dotted path of the key on each source document.
	FromField string

	// As names the field the matched document(s) are written under. Mutually
	// exclusive with AsMap. When both are empty the result field is named
	// after the last segment of LocalField with a "_joined" suffix.
	As string

	// AsMap plucks individual fields off the matched document(s) instead of
	// attaching them whole. Keys are source field paths, values are the
	// destination field names written onto the local document. With multiple
	// matches each destination field holds the plucked values in match order.
	AsMap map[string]string
}

// Result summarizes one join call. The mutated local collection is the
// primary output channel; Result only reports what failed to match.
type Result struct {
	// AllSuccess is true iff JoinFailedValues is empty.
	AllSuccess bool

	// JoinFailedValues holds every key value that matched no source document,
	// in local order. A document whose key path resolved to nothing
	// contributes a single nil entry. Duplicates are kept.
	JoinFailedValues []any

	// Detail is nil for the default assembler; custom ResultAssembler
	// implementations may use it to return their own summary shape.
	Detail any
}
