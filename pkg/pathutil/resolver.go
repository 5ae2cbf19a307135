// Package pathutil resolves dotted field paths against nested documents.
//
// A document is the map[string]any shape produced by encoding/json. Paths are
// segment sequences joined by a separator (default "."). When a segment lands
// on an array, the remaining path is resolved against every element and the
// results are flattened, so "items.id" over an array of sub-objects yields the
// array of their ids. Absent values resolve to a well-defined miss, never an
// error.
package pathutil

import "strings"

// DefaultSeparator is the path segment separator used when none is configured.
const DefaultSeparator = "."

// Resolver splits dotted paths and resolves them against documents.
type Resolver struct {
	sep string
}

// NewResolver creates a resolver using the given segment separator.
// An empty separator falls back to DefaultSeparator.
func NewResolver(separator string) *Resolver {
	if separator == "" {
		separator = DefaultSeparator
	}
	return &Resolver{sep: separator}
}

// Separator returns the configured segment separator.
func (r *Resolver) Separator() string {
	return r.sep
}

// Split decomposes a path into its segments. An empty path has no segments.
func (r *Resolver) Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, r.sep)
}

// Resolve follows each segment of path starting at doc and reports the value
// reached and whether it exists. An empty path resolves to doc itself.
//
// Array segments fan out: the remaining path is resolved against every
// element and existing results are flattened into a single array. A path that
// runs into an absent key or a scalar with segments left over resolves to
// (nil, false).
func (r *Resolver) Resolve(doc map[string]any, path string) (any, bool) {
	if doc == nil {
		return nil, false
	}
	if path == "" {
		return doc, true
	}
	return resolveValue(doc, r.Split(path))
}

// WriteBase returns the path of the parent of the last segment. Results are
// written as a new sibling of the last segment, so the base is where the
// engine attaches the result field. A single-segment path has an empty base,
// meaning the document root.
func (r *Resolver) WriteBase(path string) string {
	idx := strings.LastIndex(path, r.sep)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// LastSegment returns the final segment of a path, or the path itself when it
// has a single segment.
func (r *Resolver) LastSegment(path string) string {
	idx := strings.LastIndex(path, r.sep)
	if idx < 0 {
		return path
	}
	return path[idx+len(r.sep):]
}

func resolveValue(value any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return value, true
	}

	switch v := value.(type) {
	case map[string]any:
		child, ok := v[segments[0]]
		if !ok {
			return nil, false
		}
		return resolveValue(child, segments[1:])

	case []any:
		return resolveElements(v, segments)

	case []map[string]any:
		elements := make([]any, len(v))
		for i := range v {
			elements[i] = v[i]
		}
		return resolveElements(elements, segments)

	default:
		// Scalar with segments left over: nothing to descend into.
		return nil, false
	}
}

// resolveElements resolves the remaining segments against every array element
// and flattens existing results into a single array.
func resolveElements(elements []any, segments []string) (any, bool) {
	out := make([]any, 0, len(elements))
	found := false
	for _, element := range elements {
		resolved, ok := resolveValue(element, segments)
		if !ok {
			continue
		}
		found = true
		if nested, isArray := resolved.([]any); isArray {
			out = append(out, nested...)
		} else {
			out = append(out, resolved)
		}
	}
	if !found {
		return nil, false
	}
	return out, true
}
