package tags

import (
	"slices"
	"strings"
)

// DefaultSuggestLimit is the number of suggestions returned when no limit is given.
const DefaultSuggestLimit = 10

// Normalize trims and lowercases a tag and collapses internal whitespace runs into single hyphens.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// Parse splits every input on commas, normalizes each piece and drops empties.
// Duplicates are removed keeping the first occurrence, so the result preserves user order.
func Parse(inputs ...string) []string {
	seen := make(map[string]struct{})
	out := []string{}

	for _, in := range inputs {
		for _, piece := range strings.Split(in, ",") {
			tag := Normalize(piece)
			if tag == "" {
				continue
			}

			if _, ok := seen[tag]; ok {
				continue
			}

			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}

	return out
}

// Serialize returns the canonical storage form: parsed tags joined with commas.
func Serialize(inputs ...string) string {
	return strings.Join(Parse(inputs...), ",")
}

// Merge is a set union over any number of tag lists. Nil lists are allowed.
// Unlike Parse the result is sorted.
func Merge(inputs ...[]string) []string {
	var flat []string
	for _, in := range inputs {
		flat = append(flat, in...)
	}

	out := Parse(flat...)
	slices.Sort(out)

	return out
}

// Suggest returns known tags whose normalized form starts with the normalized prefix.
// A limit <= 0 means DefaultSuggestLimit.
func Suggest(prefix string, known []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}

	p := Normalize(prefix)

	var out []string

	for _, tag := range Merge(known) {
		if strings.HasPrefix(tag, p) {
			out = append(out, tag)
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}

	return out
}
