package join

import (
	"context"
	"fmt"
	"strings"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
)

// PathResolver reads key values off documents and locates where results are
// written. pathutil.Resolver is the default implementation; swap it to change
// the separator or the traversal rules.
type PathResolver interface {
	// Resolve follows path from doc and reports the value and whether it
	// exists. Array segments fan out and flatten.
	Resolve(doc Document, path string) (any, bool)

	// WriteBase returns the parent path of the last segment. The result field
	// is attached as a new sibling of the last segment.
	WriteBase(path string) string

	// LastSegment returns the final segment of path.
	LastSegment(path string) string
}

// Validator checks the field specification before any fetch or mutation
// happens. A validation error aborts the call with no partial effects.
type Validator interface {
	ValidateFields(p Params, metadata any) error
}

// Standardizer normalizes both sides of the join into uniform document
// slices. StandardizeFrom owns the single fetch invocation.
type Standardizer interface {
	StandardizeLocal(local any, metadata any) ([]Document, error)
	StandardizeFrom(ctx context.Context, fetch FetchFunc, metadata any) ([]Document, error)
}

// AsValueInput carries everything a ValueGenerator needs to shape the value
// written for one local document.
type AsValueInput struct {
	// Matched holds the source documents that matched, in match order.
	// Always non-empty when the generator is invoked.
	Matched []Document

	// MultiValued is true when the local key resolved to an array. Array keys
	// attach an array of matches even when only one source document matched.
	MultiValued bool

	// As and AsMap are copied from the join Params.
	As    string
	AsMap map[string]string

	// Resolver is the engine's path resolver, for plucking AsMap fields.
	Resolver PathResolver

	// Metadata is the opaque per-call value, forwarded unmodified.
	Metadata any
}

// ValueGenerator turns the matched documents into the value(s) written onto
// the local document. With AsMap set the returned value must be a
// Document whose keys are the destination field names.
type ValueGenerator interface {
	GenerateAsValue(ctx context.Context, in AsValueInput) (any, error)
}

// ResultAssembler builds the summary returned to the caller once all local
// documents are processed.
type ResultAssembler interface {
	GenerateResult(joinFailedValues []any, locals []Document, metadata any) Result
}

// KeyNormalizer maps key values before indexing and lookup, on both sides.
// The default is the identity: strict equality, no coercion. Installing a
// normalizer (see FoldNormalizer) is the explicit opt-in for looser matching.
type KeyNormalizer interface {
	NormalizeKey(key any) any
}

// defaultValidator rejects malformed field specifications up front.
type defaultValidator struct{}

func (defaultValidator) ValidateFields(p Params, _ any) error {
	if p.Local == nil {
		return sdkerrors.NewError(sdkerrors.CodeValidation, "local", sdkerrors.ErrNilLocal)
	}
	if p.From == nil {
		return sdkerrors.NewError(sdkerrors.CodeValidation, "from", sdkerrors.ErrNilFetch)
	}
	if strings.TrimSpace(p.LocalField) == "" {
		return sdkerrors.NewError(sdkerrors.CodeValidation, "localField", sdkerrors.ErrEmptyField)
	}
	if strings.TrimSpace(p.FromField) == "" {
		return sdkerrors.NewError(sdkerrors.CodeValidation, "fromField", sdkerrors.ErrEmptyField)
	}
	if p.As != "" && len(p.AsMap) > 0 {
		return sdkerrors.NewError(sdkerrors.CodeValidation, "as", sdkerrors.ErrConflictingAs)
	}
	for source, destination := range p.AsMap {
		if strings.TrimSpace(source) == "" || strings.TrimSpace(destination) == "" {
			return sdkerrors.NewError(sdkerrors.CodeValidation,
				fmt.Sprintf("asMap entry %q: %q", source, destination), sdkerrors.ErrEmptyField)
		}
	}
	return nil
}

// defaultStandardizer normalizes either side to a []Document. With copy set
// it takes a shallow clone of every local document instead of keeping the
// caller's references, for callers that must not have their data mutated.
type defaultStandardizer struct {
	copy bool
}

// NewCopyingStandardizer returns a Standardizer that shallow-clones every
// local document, so the caller's own maps are never written to. Pair it with
// a ResultAssembler that returns the clones (see CollectingAssembler) to get
// the populated documents back.
func NewCopyingStandardizer() Standardizer {
	return defaultStandardizer{copy: true}
}

func (s defaultStandardizer) StandardizeLocal(local any, _ any) ([]Document, error) {
	docs, err := toDocuments(local, sdkerrors.ErrInvalidLocal)
	if err != nil {
		return nil, err
	}
	if !s.copy {
		return docs, nil
	}
	clones := make([]Document, len(docs))
	for i, doc := range docs {
		clone := make(Document, len(doc))
		for k, v := range doc {
			clone[k] = v
		}
		clones[i] = clone
	}
	return clones, nil
}

func (s defaultStandardizer) StandardizeFrom(ctx context.Context, fetch FetchFunc, metadata any) ([]Document, error) {
	fetched, err := fetch(ctx, metadata)
	if err != nil {
		// Fetch errors propagate unmodified; the engine never retries.
		return nil, err
	}
	return toDocuments(fetched, sdkerrors.ErrInvalidSource)
}

func toDocuments(value any, invalid error) ([]Document, error) {
	switch v := value.(type) {
	case Document:
		return []Document{v}, nil
	case []Document:
		return v, nil
	case []any:
		docs := make([]Document, len(v))
		for i, element := range v {
			doc, ok := element.(Document)
			if !ok {
				return nil, sdkerrors.NewError(sdkerrors.CodeValidation,
					fmt.Sprintf("element %d is %T", i, element), invalid)
			}
			docs[i] = doc
		}
		return docs, nil
	default:
		return nil, sdkerrors.NewError(sdkerrors.CodeValidation,
			fmt.Sprintf("got %T", value), invalid)
	}
}

// defaultValueGenerator implements the as/asMap semantics: the raw matched
// document (or slice of them) for as, plucked-and-renamed fields for asMap.
type defaultValueGenerator struct{}

func (defaultValueGenerator) GenerateAsValue(_ context.Context, in AsValueInput) (any, error) {
	if len(in.AsMap) > 0 {
		return pluckFields(in), nil
	}
	if len(in.Matched) == 1 && !in.MultiValued {
		return in.Matched[0], nil
	}
	return in.Matched, nil
}

// pluckFields resolves every AsMap source path against the matched documents.
// A scalar key with a single match yields the plucked values directly;
// otherwise each destination field holds one array in match order, with nil
// holding the place of absent fields so positions stay aligned.
func pluckFields(in AsValueInput) Document {
	out := make(Document, len(in.AsMap))
	for sourceField, destination := range in.AsMap {
		if len(in.Matched) == 1 && !in.MultiValued {
			value, _ := in.Resolver.Resolve(in.Matched[0], sourceField)
			out[destination] = value
			continue
		}
		values := make([]any, len(in.Matched))
		for i, matched := range in.Matched {
			value, _ := in.Resolver.Resolve(matched, sourceField)
			values[i] = value
		}
		out[destination] = values
	}
	return out
}

// defaultAssembler returns the summary-only result shape.
type defaultAssembler struct{}

func (defaultAssembler) GenerateResult(joinFailedValues []any, _ []Document, _ any) Result {
	if joinFailedValues == nil {
		joinFailedValues = []any{}
	}
	return Result{
		AllSuccess:       len(joinFailedValues) == 0,
		JoinFailedValues: joinFailedValues,
	}
}

// CollectingAssembler is the default assembler plus the processed local
// documents in Result.Detail. Useful with NewCopyingStandardizer, where the
// populated clones are otherwise unreachable.
type CollectingAssembler struct{}

func (CollectingAssembler) GenerateResult(joinFailedValues []any, locals []Document, _ any) Result {
	result := defaultAssembler{}.GenerateResult(joinFailedValues, locals, nil)
	result.Detail = locals
	return result
}

// identityNormalizer keeps keys as-is: exact-match semantics.
type identityNormalizer struct{}

func (identityNormalizer) NormalizeKey(key any) any { return key }
