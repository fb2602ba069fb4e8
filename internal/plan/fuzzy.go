package plan

import "strings"

// Substitution is one bidirectional phonetic spelling rule.
type Substitution struct {
	A, B string
}

// DefaultSubstitutions covers common transliteration variance in names.
// The table is deliberately configurable; these defaults are a starting
// point, not an exhaustive list.
func DefaultSubstitutions() []Substitution {
	return []Substitution{
		{A: "ksh", B: "kch"},
		{A: "sh", B: "ch"},
		{A: "ee", B: "i"},
		{A: "v", B: "w"},
	}
}

// FuzzyExpander generates spelling variants of a text literal for
// name-like column matching.
type FuzzyExpander struct {
	subs        []Substitution
	maxVariants int
}

// NewFuzzyExpander builds an expander from a substitution table. A
// non-positive maxVariants falls back to 8.
func NewFuzzyExpander(subs []Substitution, maxVariants int) *FuzzyExpander {
	if len(subs) == 0 {
		subs = DefaultSubstitutions()
	}
	if maxVariants <= 0 {
		maxVariants = 8
	}
	return &FuzzyExpander{subs: subs, maxVariants: maxVariants}
}

// Variants returns spelling variants of value, the unmodified input always
// first. Each substitution is applied in both directions, breadth-first
// over already generated variants, until the cap is reached. Matching is
// case-insensitive downstream, so variants are generated on the lowered
// form.
func (e *FuzzyExpander) Variants(value string) []string {
	base := strings.ToLower(value)
	out := []string{base}
	seen := map[string]bool{base: true}

	for i := 0; i < len(out) && len(out) < e.maxVariants; i++ {
		cur := out[i]
		for _, sub := range e.subs {
			for _, next := range []string{
				strings.ReplaceAll(cur, sub.A, sub.B),
				strings.ReplaceAll(cur, sub.B, sub.A),
			} {
				if !seen[next] {
					seen[next] = true
					out = append(out, next)
					if len(out) >= e.maxVariants {
						return out
					}
				}
			}
		}
	}
	return out
}
