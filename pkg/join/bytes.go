package join

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
)

// FetchBytesFunc produces the source collection for a byte-level join as a
// raw JSON document or array. Same contract as FetchFunc otherwise: called
// exactly once, errors propagate unmodified, no retry.
type FetchBytesFunc func(ctx context.Context, metadata any) ([]byte, error)

// BytesParams describes one byte-level join. LocalField and FromField use
// gjson path syntax (so "items.#.id" fans out over an array). As and AsMap
// destination names are plain field names attached at the root of each local
// element.
type BytesParams struct {
	From       FetchBytesFunc
	LocalField string
	FromField  string
	As         string
	AsMap      map[string]string
}

// JoinBytes joins raw JSON payloads without unmarshalling the documents: keys
// are read with gjson and results written with sjson, so callers holding
// payloads straight off the wire skip the map round trip. localJSON may be a
// single object or an array of objects; the returned bytes are the same shape
// with the result fields attached. Unlike Engine.Join there is no in-place
// mutation, the returned payload is the output.
//
// The engine's key normalizer and result assembler apply; the path resolver
// and value generator do not, since gjson and sjson take their place.
func (e *Engine) JoinBytes(ctx context.Context, localJSON []byte, p BytesParams, metadata any) ([]byte, Result, error) {
	if err := validateBytesParams(localJSON, p); err != nil {
		return nil, Result{}, err
	}

	parsed := gjson.ParseBytes(localJSON)
	isArray := parsed.IsArray()
	var elements []gjson.Result
	if isArray {
		elements = parsed.Array()
	} else {
		elements = []gjson.Result{parsed}
	}

	fetched, err := p.From(ctx, metadata)
	if err != nil {
		return nil, Result{}, err
	}
	if !json.Valid(fetched) {
		return nil, Result{}, sdkerrors.NewError(sdkerrors.CodeSource,
			"fetched payload is not valid JSON", sdkerrors.ErrInvalidSource)
	}
	sourceParsed := gjson.ParseBytes(fetched)
	var sources []gjson.Result
	if sourceParsed.IsArray() {
		sources = sourceParsed.Array()
	} else {
		sources = []gjson.Result{sourceParsed}
	}

	index := e.buildBytesIndex(sources, p.FromField)

	out := localJSON
	var failed []any
	for i, element := range elements {
		keys, multiValued := bytesKeys(element, p.LocalField)
		if keys == nil {
			failed = append(failed, nil)
			continue
		}

		hits, misses := e.lookupIndices(index, keys)
		failed = append(failed, misses...)
		if len(hits) == 0 {
			continue
		}

		prefix := ""
		if isArray {
			prefix = strconv.Itoa(i) + "."
		}
		out, err = e.writeBytes(out, prefix, p, sources, hits, multiValued)
		if err != nil {
			return nil, Result{}, err
		}
	}

	result := e.assembler.GenerateResult(failed, nil, metadata)
	return out, result, nil
}

func validateBytesParams(localJSON []byte, p BytesParams) error {
	if len(localJSON) == 0 || !json.Valid(localJSON) {
		return sdkerrors.NewError(sdkerrors.CodeValidation,
			"local payload is not valid JSON", sdkerrors.ErrInvalidLocal)
	}
	if p.From == nil {
		return sdkerrors.NewError(sdkerrors.CodeValidation, "from", sdkerrors.ErrNilFetch)
	}
	if p.LocalField == "" {
		return sdkerrors.NewError(sdkerrors.CodeValidation, "localField", sdkerrors.ErrEmptyField)
	}
	if p.FromField == "" {
		return sdkerrors.NewError(sdkerrors.CodeValidation, "fromField", sdkerrors.ErrEmptyField)
	}
	if p.As != "" && len(p.AsMap) > 0 {
		return sdkerrors.NewError(sdkerrors.CodeValidation, "as", sdkerrors.ErrConflictingAs)
	}
	for source, destination := range p.AsMap {
		if source == "" || destination == "" {
			return sdkerrors.NewError(sdkerrors.CodeValidation,
				fmt.Sprintf("asMap entry %q: %q", source, destination), sdkerrors.ErrEmptyField)
		}
	}
	return nil
}

// buildBytesIndex mirrors buildIndex over gjson results.
func (e *Engine) buildBytesIndex(sources []gjson.Result, fromField string) map[any][]int {
	index := make(map[any][]int, len(sources))
	for i, source := range sources {
		keys, _ := bytesKeys(source, fromField)
		for _, key := range keys {
			key = e.normalizer.NormalizeKey(key)
			if !comparableKey(key) {
				continue
			}
			index[key] = append(index[key], i)
		}
	}
	return index
}

// bytesKeys resolves an element's key path into scalar key candidates and
// reports whether the key was array-valued; nil keys mean the path resolved
// to nothing.
func bytesKeys(element gjson.Result, path string) ([]any, bool) {
	resolved := element.Get(path)
	if !resolved.Exists() || resolved.Type == gjson.Null {
		return nil, false
	}
	if resolved.IsArray() {
		items := resolved.Array()
		if len(items) == 0 {
			return nil, true
		}
		keys := make([]any, len(items))
		for i, item := range items {
			keys[i] = item.Value()
		}
		return keys, true
	}
	return []any{resolved.Value()}, false
}

// writeBytes attaches the matched sources onto one local element. As mode
// splices the raw matched JSON (object for a single match, array for
// several); AsMap mode plucks and renames fields the same way the default
// ValueGenerator does.
func (e *Engine) writeBytes(out []byte, prefix string, p BytesParams, sources []gjson.Result, hits []int, multiValued bool) ([]byte, error) {
	single := len(hits) == 1 && !multiValued
	if len(p.AsMap) > 0 {
		var err error
		for sourceField, destination := range p.AsMap {
			var value any
			if single {
				value = sources[hits[0]].Get(sourceField).Value()
			} else {
				values := make([]any, len(hits))
				for i, idx := range hits {
					values[i] = sources[idx].Get(sourceField).Value()
				}
				value = values
			}
			out, err = sjson.SetBytes(out, prefix+destination, value)
			if err != nil {
				return nil, fmt.Errorf("failed to set field %s: %w", destination, err)
			}
		}
		return out, nil
	}

	name := p.As
	if name == "" {
		name = lastGjsonSegment(p.LocalField) + "_joined"
	}

	var raw []byte
	if single {
		raw = []byte(sources[hits[0]].Raw)
	} else {
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, idx := range hits {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(sources[idx].Raw)
		}
		buf.WriteByte(']')
		raw = buf.Bytes()
	}

	out, err := sjson.SetRawBytes(out, prefix+name, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to set field %s: %w", name, err)
	}
	return out, nil
}

// lastGjsonSegment returns the final named segment of a gjson path, skipping
// the "#" fan-out operator.
func lastGjsonSegment(path string) string {
	segments := gjsonSegments(path)
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "#" {
			return segments[i]
		}
	}
	return path
}

func gjsonSegments(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '\\' {
			i++
			continue
		}
		if path[i] == '.' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	return append(segments, path[start:])
}
