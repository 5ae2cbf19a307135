package join

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/pathutil"
)

func staticFrom(data any) FetchFunc {
	return func(ctx context.Context, metadata any) (any, error) {
		return data, nil
	}
}

func products() []any {
	return []any{
		Document{"id": float64(101), "title": "Widget"},
		Document{"id": float64(102), "title": "Gadget"},
		Document{"id": float64(201), "title": "Gizmo"},
	}
}

func TestJoinScalarKeySingleMatch(t *testing.T) {
	local := []Document{
		{"id": float64(1), "productId": float64(101)},
		{"id": float64(2), "productId": float64(201)},
	}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)

	assert.True(t, result.AllSuccess)
	assert.Empty(t, result.JoinFailedValues)
	assert.Equal(t, Document{"id": float64(101), "title": "Widget"}, local[0]["product"])
	assert.Equal(t, Document{"id": float64(201), "title": "Gizmo"}, local[1]["product"])
}

func TestJoinArrayKeyScenario(t *testing.T) {
	// The motivating scenario: array-valued keys match any element and
	// always attach an array, even for a single match.
	local := []Document{
		{"id": float64(1), "items": []any{float64(101), float64(102)}},
		{"id": float64(2), "items": []any{float64(201)}},
	}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "items",
		FromField:  "id",
		As:         "products",
	}, nil)
	require.NoError(t, err)

	assert.True(t, result.AllSuccess)
	assert.Empty(t, result.JoinFailedValues)
	assert.Equal(t, []Document{
		{"id": float64(101), "title": "Widget"},
		{"id": float64(102), "title": "Gadget"},
	}, local[0]["products"])
	assert.Equal(t, []Document{
		{"id": float64(201), "title": "Gizmo"},
	}, local[1]["products"])
}

func TestJoinMissRecordsKeyAndLeavesFieldUnset(t *testing.T) {
	local := []Document{
		{"id": float64(1), "productId": float64(101)},
		{"id": float64(2), "productId": float64(999)},
	}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)

	assert.False(t, result.AllSuccess)
	assert.Equal(t, []any{float64(999)}, result.JoinFailedValues)
	assert.Contains(t, local[0], "product")
	assert.NotContains(t, local[1], "product")
}

func TestJoinOneToManyPreservesSourceOrder(t *testing.T) {
	local := []Document{{"sku": "a"}}
	source := []any{
		Document{"sku": "a", "n": float64(1)},
		Document{"sku": "b", "n": float64(2)},
		Document{"sku": "a", "n": float64(3)},
	}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(source),
		LocalField: "sku",
		FromField:  "sku",
		As:         "variants",
	}, nil)
	require.NoError(t, err)

	assert.True(t, result.AllSuccess)
	assert.Equal(t, []Document{
		{"sku": "a", "n": float64(1)},
		{"sku": "a", "n": float64(3)},
	}, local[0]["variants"])
}

func TestJoinNestedArrayPath(t *testing.T) {
	// "items.id" where items is an array of sub-objects resolves to the array
	// of ids and attaches an array of matches.
	local := []Document{
		{
			"id": float64(1),
			"items": []any{
				Document{"id": float64(101)},
				Document{"id": float64(102)},
			},
		},
	}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "items.id",
		FromField:  "id",
		As:         "products",
	}, nil)
	require.NoError(t, err)

	assert.True(t, result.AllSuccess)
	// The write base "items" is array-valued, so the field lands on the root.
	assert.Equal(t, []Document{
		{"id": float64(101), "title": "Widget"},
		{"id": float64(102), "title": "Gadget"},
	}, local[0]["products"])
}

func TestJoinNestedObjectPathWritesSiblingField(t *testing.T) {
	local := []Document{
		{
			"id":       float64(1),
			"customer": Document{"id": "c-1"},
		},
	}
	source := []any{Document{"id": "c-1", "name": "Ada"}}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(source),
		LocalField: "customer.id",
		FromField:  "id",
		As:         "profile",
	}, nil)
	require.NoError(t, err)
	require.True(t, result.AllSuccess)

	customer := local[0]["customer"].(Document)
	assert.Equal(t, Document{"id": "c-1", "name": "Ada"}, customer["profile"])
	assert.NotContains(t, local[0], "profile")
}

func TestJoinAsMapSingleMatch(t *testing.T) {
	local := []Document{{"productId": float64(101)}}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
		AsMap: map[string]string{
			"id":    "productId2",
			"title": "productName",
		},
	}, nil)
	require.NoError(t, err)

	assert.True(t, result.AllSuccess)
	assert.Equal(t, float64(101), local[0]["productId2"])
	assert.Equal(t, "Widget", local[0]["productName"])
}

func TestJoinAsMapMultiMatchBecomesArrays(t *testing.T) {
	local := []Document{{"items": []any{float64(101), float64(201)}}}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "items",
		FromField:  "id",
		AsMap:      map[string]string{"title": "titles"},
	}, nil)
	require.NoError(t, err)

	assert.True(t, result.AllSuccess)
	assert.Equal(t, []any{"Widget", "Gizmo"}, local[0]["titles"])
}

func TestJoinDefaultResultFieldName(t *testing.T) {
	local := []Document{{"productId": float64(101)}}

	_, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
	}, nil)
	require.NoError(t, err)

	assert.Contains(t, local[0], "productId_joined")
}

func TestJoinStrictKeyEquality(t *testing.T) {
	// Numeric and stringified ids never coerce into each other.
	local := []Document{{"productId": "101"}}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)

	assert.False(t, result.AllSuccess)
	assert.Equal(t, []any{"101"}, result.JoinFailedValues)
	assert.NotContains(t, local[0], "product")
}

func TestJoinAbsentKeyIsMiss(t *testing.T) {
	local := []Document{{"id": float64(1)}}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)

	assert.False(t, result.AllSuccess)
	assert.Equal(t, []any{nil}, result.JoinFailedValues)
	assert.NotContains(t, local[0], "product")
}

func TestJoinPartialArrayKeyMatch(t *testing.T) {
	local := []Document{{"items": []any{float64(101), float64(999)}}}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "items",
		FromField:  "id",
		As:         "products",
	}, nil)
	require.NoError(t, err)

	// The matched element still attaches; the unmatched one is a miss.
	assert.False(t, result.AllSuccess)
	assert.Equal(t, []any{float64(999)}, result.JoinFailedValues)
	assert.Equal(t, []Document{
		{"id": float64(101), "title": "Widget"},
	}, local[0]["products"])
}

func TestJoinArraySourceKeysIndexEveryElement(t *testing.T) {
	local := []Document{
		{"tag": "sale"},
		{"tag": "new"},
	}
	source := []any{
		Document{"name": "Widget", "tags": []any{"sale", "new"}},
		Document{"name": "Gadget", "tags": []any{"new"}},
	}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(source),
		LocalField: "tag",
		FromField:  "tags",
		As:         "offers",
	}, nil)
	require.NoError(t, err)
	require.True(t, result.AllSuccess)

	assert.Equal(t, Document{"name": "Widget", "tags": []any{"sale", "new"}}, local[0]["offers"])
	assert.Equal(t, []Document{
		{"name": "Widget", "tags": []any{"sale", "new"}},
		{"name": "Gadget", "tags": []any{"new"}},
	}, local[1]["offers"])
}

func TestJoinDuplicateLocalKeys(t *testing.T) {
	local := []Document{
		{"productId": float64(999)},
		{"productId": float64(999)},
	}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)

	// Duplicate failing keys are each recorded.
	assert.Equal(t, []any{float64(999), float64(999)}, result.JoinFailedValues)
}

func TestJoinSingleLocalDocument(t *testing.T) {
	local := Document{"productId": float64(102)}

	result, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(Document{"id": float64(102), "title": "Gadget"}),
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)

	assert.True(t, result.AllSuccess)
	assert.Equal(t, Document{"id": float64(102), "title": "Gadget"}, local["product"])
}

func TestJoinEmptyLocalStillFetchesOnce(t *testing.T) {
	calls := 0
	from := func(ctx context.Context, metadata any) (any, error) {
		calls++
		return products(), nil
	}

	result, err := New().Join(context.Background(), Params{
		Local:      []Document{},
		From:       from,
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)

	assert.True(t, result.AllSuccess)
	assert.Empty(t, result.JoinFailedValues)
	assert.Equal(t, 1, calls)
}

func TestJoinFetchInvokedExactlyOnce(t *testing.T) {
	calls := 0
	from := func(ctx context.Context, metadata any) (any, error) {
		calls++
		return products(), nil
	}
	local := []Document{
		{"productId": float64(101)},
		{"productId": float64(102)},
		{"productId": float64(201)},
	}

	_, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       from,
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestJoinFetchErrorPropagatesUnmodified(t *testing.T) {
	fetchErr := errors.New("upstream unavailable")
	local := []Document{{"productId": float64(101)}}

	_, err := New().Join(context.Background(), Params{
		Local:      local,
		From:       func(ctx context.Context, metadata any) (any, error) { return nil, fetchErr },
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)

	require.Error(t, err)
	assert.Equal(t, fetchErr, err)
	// No partial mutation: the local document is exactly as it started.
	assert.Equal(t, Document{"productId": float64(101)}, local[0])
}

func TestJoinValidation(t *testing.T) {
	valid := Params{
		Local:      []Document{{"productId": float64(101)}},
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
	}

	tests := []struct {
		name     string
		mutate   func(p *Params)
		sentinel error
	}{
		{
			name:     "nil local",
			mutate:   func(p *Params) { p.Local = nil },
			sentinel: sdkerrors.ErrNilLocal,
		},
		{
			name:     "nil from",
			mutate:   func(p *Params) { p.From = nil },
			sentinel: sdkerrors.ErrNilFetch,
		},
		{
			name:     "empty localField",
			mutate:   func(p *Params) { p.LocalField = "" },
			sentinel: sdkerrors.ErrEmptyField,
		},
		{
			name:     "blank fromField",
			mutate:   func(p *Params) { p.FromField = "   " },
			sentinel: sdkerrors.ErrEmptyField,
		},
		{
			name: "as and asMap together",
			mutate: func(p *Params) {
				p.As = "product"
				p.AsMap = map[string]string{"id": "productId"}
			},
			sentinel: sdkerrors.ErrConflictingAs,
		},
		{
			name:     "empty asMap destination",
			mutate:   func(p *Params) { p.AsMap = map[string]string{"id": ""} },
			sentinel: sdkerrors.ErrEmptyField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			fetched := false
			if p.From != nil {
				inner := p.From
				p.From = func(ctx context.Context, metadata any) (any, error) {
					fetched = true
					return inner(ctx, metadata)
				}
			}

			_, err := New().Join(context.Background(), p, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.True(t, sdkerrors.IsValidation(err))
			// Fail-fast: validation errors happen before the fetch.
			assert.False(t, fetched)
		})
	}
}

func TestJoinInvalidLocalCollection(t *testing.T) {
	_, err := New().Join(context.Background(), Params{
		Local:      []any{"not a document"},
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerrors.ErrInvalidLocal)
}

func TestJoinInvalidSourceCollection(t *testing.T) {
	_, err := New().Join(context.Background(), Params{
		Local:      []Document{{"productId": float64(101)}},
		From:       staticFrom("not a document"),
		LocalField: "productId",
		FromField:  "id",
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerrors.ErrInvalidSource)
}

func TestJoinMetadataReachesFetch(t *testing.T) {
	type requestContext struct{ Tenant string }
	var seen any
	from := func(ctx context.Context, metadata any) (any, error) {
		seen = metadata
		return products(), nil
	}

	_, err := New().Join(context.Background(), Params{
		Local:      []Document{{"productId": float64(101)}},
		From:       from,
		LocalField: "productId",
		FromField:  "id",
	}, requestContext{Tenant: "acme"})
	require.NoError(t, err)

	assert.Equal(t, requestContext{Tenant: "acme"}, seen)
}

func TestJoinCopyingStandardizerLeavesCallerDataAlone(t *testing.T) {
	local := []Document{{"productId": float64(101)}}
	engine := New(
		WithStandardizer(NewCopyingStandardizer()),
		WithAssembler(CollectingAssembler{}),
	)

	result, err := engine.Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)
	require.True(t, result.AllSuccess)

	assert.NotContains(t, local[0], "product")
	clones, ok := result.Detail.([]Document)
	require.True(t, ok)
	require.Len(t, clones, 1)
	assert.Equal(t, Document{"id": float64(101), "title": "Widget"}, clones[0]["product"])
}

func TestJoinFoldNormalizer(t *testing.T) {
	local := []Document{{"code": "ACME"}}
	source := []any{Document{"code": "acme", "name": "Acme Corp"}}

	strict, err := New().Join(context.Background(), Params{
		Local:      []Document{{"code": "ACME"}},
		From:       staticFrom(source),
		LocalField: "code",
		FromField:  "code",
		As:         "company",
	}, nil)
	require.NoError(t, err)
	assert.False(t, strict.AllSuccess)

	folded, err := New(WithKeyNormalizer(NewFoldNormalizer())).Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(source),
		LocalField: "code",
		FromField:  "code",
		As:         "company",
	}, nil)
	require.NoError(t, err)
	assert.True(t, folded.AllSuccess)
	assert.Equal(t, Document{"code": "acme", "name": "Acme Corp"}, local[0]["company"])
}

func TestJoinCustomSeparator(t *testing.T) {
	local := []Document{
		{"order": Document{"productId": float64(101)}},
	}
	engine := New(WithResolver(pathutil.NewResolver("/")))

	result, err := engine.Join(context.Background(), Params{
		Local:      local,
		From:       staticFrom(products()),
		LocalField: "order/productId",
		FromField:  "id",
		As:         "product",
	}, nil)
	require.NoError(t, err)
	require.True(t, result.AllSuccess)

	order := local[0]["order"].(Document)
	assert.Equal(t, Document{"id": float64(101), "title": "Widget"}, order["product"])
}

func TestJoinAllSuccessIffNoFailures(t *testing.T) {
	tests := []struct {
		name string
		keys []any
		want bool
	}{
		{name: "all matched", keys: []any{float64(101), float64(102)}, want: true},
		{name: "one miss", keys: []any{float64(101), float64(999)}, want: false},
		{name: "all missed", keys: []any{float64(998), float64(999)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := make([]Document, len(tt.keys))
			for i, key := range tt.keys {
				local[i] = Document{"productId": key}
			}

			result, err := New().Join(context.Background(), Params{
				Local:      local,
				From:       staticFrom(products()),
				LocalField: "productId",
				FromField:  "id",
				As:         "product",
			}, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.want, result.AllSuccess)
			assert.Equal(t, tt.want, len(result.JoinFailedValues) == 0)
		})
	}
}
