// Package join correlates an in-memory collection of documents with a
// collection produced by a caller-supplied fetch function, the way a LEFT JOIN
// correlates two tables, and attaches the matched source documents onto the
// local documents.
//
// The engine runs a fixed, single-pass pipeline: validate the field
// specification, standardize the local collection, fetch and standardize the
// source collection (the fetch function is invoked exactly once per call),
// index the source documents by their resolved key, then walk the local
// documents once, attaching matches and recording misses. Local documents are
// mutated in place; the returned Result is a summary only.
//
// Matching is exact. Keys are compared with strict equality and no type
// coercion, so a float64 id never matches its string form. Key paths are
// dotted and array-aware: a path that traverses an array resolves to an array
// of keys, and an array key matches any source document keyed by any of its
// elements. A miss is data, not an error: the unmatched key values are
// collected into Result.JoinFailedValues and every other document is still
// populated.
//
// Every pipeline stage is a strategy interface with a default implementation,
// so callers can swap the path resolver, validation, standardization, value
// generation, or result assembly independently while inheriting the rest.
package join
