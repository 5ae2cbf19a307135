// Package source provides ready-made fetch functions for the join engine:
// in-memory data, plain closures, NATS request/reply, and Azure Blob Storage.
// Each constructor returns a join.FetchFunc (or join.FetchBytesFunc) so the
// candidate set can come from wherever the caller's data lives.
package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wehubfusion/Ariadne/pkg/join"
)

// Static wraps an in-memory collection as a fetch function. Useful for tests
// and for data already held by the caller.
func Static(data any) join.FetchFunc {
	return func(ctx context.Context, metadata any) (any, error) {
		return data, nil
	}
}

// Func adapts a metadata-free closure to the fetch contract, for callers
// whose candidate set does not depend on per-call metadata.
func Func(fn func(ctx context.Context) (any, error)) join.FetchFunc {
	return func(ctx context.Context, metadata any) (any, error) {
		return fn(ctx)
	}
}

// StaticBytes wraps a raw JSON payload as a byte-level fetch function.
func StaticBytes(data []byte) join.FetchBytesFunc {
	return func(ctx context.Context, metadata any) ([]byte, error) {
		return data, nil
	}
}

// decode unmarshals a fetched JSON payload into the document shapes the
// engine standardizes.
func decode(data []byte) (any, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to decode source payload: %w", err)
	}
	return value, nil
}
