package pipeline

import "sort"

// FilterByTags returns the ordered subsequence of actions whose tag set
// contains every tag in the query (AND semantics, subset test, never
// equality, never OR).
//
// The query is deduplicated first, so a query with repeated tags selects
// exactly what the deduplicated query would. An empty query returns an
// empty slice: "run nothing" is the safe reading of "no tags given", and
// the tool layer rejects empty queries before they reach execution.
//
// The input slice is never mutated and survivors keep their relative order.
func FilterByTags(actions []Action, tags []string) []Action {
	query := dedupe(tags)

	selected := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a.HasAllTags(query) {
			selected = append(selected, a)
		}
	}
	return selected
}

// AvailableTags returns the sorted set of distinct tags across all actions.
// Used to build the "no actions matched" error payload so callers can see
// what they could have asked for.
func AvailableTags(actions []Action) []string {
	seen := make(map[string]struct{})
	for _, a := range actions {
		for _, t := range a.Tags {
			seen[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// dedupe removes duplicate tags while preserving first-occurrence order.
func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
