package join

import (
	"context"
	"reflect"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Ariadne/pkg/pathutil"
)

// Engine runs join operations. Every pipeline stage is replaceable through an
// Option; the zero-option engine implements the default semantics documented
// on Params. An Engine is immutable after New and safe for concurrent use.
type Engine struct {
	resolver   PathResolver
	validator  Validator
	std        Standardizer
	valueGen   ValueGenerator
	assembler  ResultAssembler
	normalizer KeyNormalizer
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver replaces the path resolver, e.g. for a custom separator:
// join.WithResolver(pathutil.NewResolver("/")).
func WithResolver(r PathResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithValidator replaces the field-specification validator.
func WithValidator(v Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithStandardizer replaces the input standardizer for both sides.
func WithStandardizer(s Standardizer) Option {
	return func(e *Engine) { e.std = s }
}

// WithValueGenerator replaces how matched documents become the written value.
func WithValueGenerator(g ValueGenerator) Option {
	return func(e *Engine) { e.valueGen = g }
}

// WithAssembler replaces how the summary result is built.
func WithAssembler(a ResultAssembler) Option {
	return func(e *Engine) { e.assembler = a }
}

// WithKeyNormalizer replaces the key normalizer applied to both sides before
// matching. The default is the identity (strict equality).
func WithKeyNormalizer(n KeyNormalizer) Option {
	return func(e *Engine) { e.normalizer = n }
}

// WithLogger sets the structured logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine from the default pipeline plus the given overrides.
func New(opts ...Option) *Engine {
	e := &Engine{
		resolver:   pathutil.NewResolver(""),
		validator:  defaultValidator{},
		std:        defaultStandardizer{},
		valueGen:   defaultValueGenerator{},
		assembler:  defaultAssembler{},
		normalizer: identityNormalizer{},
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("ariadne/join"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Join performs one join operation. Matched local documents are mutated in
// place; the returned Result is a summary only. metadata is forwarded
// unmodified to every pipeline stage.
//
// Errors follow the taxonomy on the package doc: validation errors and fetch
// errors abort the call (fetch errors arrive unwrapped, before any local
// document was touched); unmatched keys are not errors and end up in
// Result.JoinFailedValues.
func (e *Engine) Join(ctx context.Context, p Params, metadata any) (Result, error) {
	joinID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "join.Join",
		trace.WithAttributes(
			attribute.String("join.id", joinID),
			attribute.String("join.local_field", p.LocalField),
			attribute.String("join.from_field", p.FromField),
		))
	defer span.End()

	if err := e.validator.ValidateFields(p, metadata); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		span.RecordError(err)
		return Result{}, err
	}

	locals, err := e.std.StandardizeLocal(p.Local, metadata)
	if err != nil {
		span.SetStatus(codes.Error, "standardize local failed")
		span.RecordError(err)
		return Result{}, err
	}

	// All local keys are resolved before the fetch, so a fetch error leaves
	// the collection provably untouched.
	localKeys := make([][]any, len(locals))
	multiValued := make([]bool, len(locals))
	for i, doc := range locals {
		localKeys[i], multiValued[i] = e.resolveKeys(doc, p.LocalField)
	}

	fetchCtx, fetchSpan := e.tracer.Start(ctx, "join.fetch")
	sources, err := e.std.StandardizeFrom(fetchCtx, p.From, metadata)
	if err != nil {
		fetchSpan.SetStatus(codes.Error, "fetch failed")
		fetchSpan.RecordError(err)
		fetchSpan.End()
		span.SetStatus(codes.Error, "fetch failed")
		e.logger.Error("source fetch failed",
			zap.String("join_id", joinID),
			zap.Error(err))
		return Result{}, err
	}
	fetchSpan.SetAttributes(attribute.Int("join.source_entries", len(sources)))
	fetchSpan.End()

	index := e.buildIndex(sources, p.FromField)

	var failed []any
	for i, doc := range locals {
		keys := localKeys[i]
		if keys == nil {
			// Key path resolved to nothing: a defined miss, not an error.
			failed = append(failed, nil)
			continue
		}

		hits, misses := e.lookupIndices(index, keys)
		failed = append(failed, misses...)
		if len(hits) == 0 {
			continue
		}
		matched := make([]Document, len(hits))
		for j, idx := range hits {
			matched[j] = sources[idx]
		}

		value, err := e.valueGen.GenerateAsValue(ctx, AsValueInput{
			Matched:     matched,
			MultiValued: multiValued[i],
			As:          p.As,
			AsMap:       p.AsMap,
			Resolver:    e.resolver,
			Metadata:    metadata,
		})
		if err != nil {
			span.SetStatus(codes.Error, "value generation failed")
			span.RecordError(err)
			return Result{}, err
		}
		e.write(doc, p, value)
	}

	result := e.assembler.GenerateResult(failed, locals, metadata)
	span.SetAttributes(
		attribute.Int("join.local_entries", len(locals)),
		attribute.Int("join.failed_keys", len(failed)),
	)
	e.logger.Debug("join completed",
		zap.String("join_id", joinID),
		zap.Int("local_entries", len(locals)),
		zap.Int("source_entries", len(sources)),
		zap.Int("failed_keys", len(failed)))
	return result, nil
}

// resolveKeys resolves a document's key path into the list of scalar key
// candidates, reporting whether the key was array-valued. A scalar key yields
// a one-element list, an array key yields its elements, an absent key yields
// nil.
func (e *Engine) resolveKeys(doc Document, path string) ([]any, bool) {
	value, ok := e.resolver.Resolve(doc, path)
	if !ok || value == nil {
		return nil, false
	}
	if elements, isArray := value.([]any); isArray {
		if len(elements) == 0 {
			return nil, true
		}
		return elements, true
	}
	return []any{value}, false
}

// buildIndex maps every normalized source key to the indices of the source
// documents carrying it, in source order. Array-valued source keys index the
// document under every element.
func (e *Engine) buildIndex(sources []Document, fromField string) map[any][]int {
	index := make(map[any][]int, len(sources))
	for i, doc := range sources {
		keys, _ := e.resolveKeys(doc, fromField)
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

// lookupIndices gathers the source indices matching any of the key
// candidates. Each source document attaches at most once per local document,
// at its first-match position; every candidate with no match is reported as a
// miss.
func (e *Engine) lookupIndices(index map[any][]int, keys []any) ([]int, []any) {
	var matched []int
	var misses []any
	seen := make(map[int]bool)
	for _, key := range keys {
		normalized := e.normalizer.NormalizeKey(key)
		if !comparableKey(normalized) {
			misses = append(misses, key)
			continue
		}
		hits := index[normalized]
		if len(hits) == 0 {
			misses = append(misses, key)
			continue
		}
		for _, i := range hits {
			if seen[i] {
				continue
			}
			seen[i] = true
			matched = append(matched, i)
		}
	}
	return matched, misses
}

// write attaches the generated value onto the document. AsMap spreads its
// destination fields directly; As (or the default name) sets a single field.
// The write base is the parent of the key path's last segment when it is a
// single nested document, and the document root otherwise.
func (e *Engine) write(doc Document, p Params, value any) {
	target := doc
	if base := e.resolver.WriteBase(p.LocalField); base != "" {
		if parent, ok := e.resolver.Resolve(doc, base); ok {
			if m, isDoc := parent.(Document); isDoc {
				target = m
			}
		}
	}

	if len(p.AsMap) > 0 {
		if fields, isDoc := value.(Document); isDoc {
			for name, v := range fields {
				target[name] = v
			}
			return
		}
	}

	name := p.As
	if name == "" {
		name = e.resolver.LastSegment(p.LocalField) + "_joined"
	}
	target[name] = value
}

// comparableKey reports whether a key can be used in the index without
// panicking: scalars qualify, maps and slices do not.
func comparableKey(key any) bool {
	if key == nil {
		return false
	}
	return reflect.TypeOf(key).Comparable()
}
