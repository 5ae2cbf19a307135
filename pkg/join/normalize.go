package join

import "golang.org/x/text/cases"

// FoldNormalizer case-folds string keys so "ACME" and "acme" correlate.
// Non-string keys pass through untouched. This is an explicit opt-in; the
// engine default stays strict equality.
type FoldNormalizer struct{}

// NewFoldNormalizer creates a Unicode case-folding key normalizer.
func NewFoldNormalizer() *FoldNormalizer {
	return &FoldNormalizer{}
}

// NormalizeKey folds string keys and returns every other key unchanged.
// A cases.Caser is stateful, so one is created per call.
func (*FoldNormalizer) NormalizeKey(key any) any {
	if s, ok := key.(string); ok {
		return cases.Fold().String(s)
	}
	return key
}
