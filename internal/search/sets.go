package search

// Dedupe returns ids without repeats, keeping the first occurrence of each.
// Empty ids are dropped.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Intersect returns the ids present in every list, in the order of the first
// list. No lists yields an empty result.
func Intersect(lists [][]string) []string {
	if len(lists) == 0 {
		return []string{}
	}
	result := Dedupe(lists[0])
	for _, l := range lists[1:] {
		if len(result) == 0 {
			break
		}
		keep := make(map[string]struct{}, len(l))
		for _, id := range l {
			keep[id] = struct{}{}
		}
		filtered := result[:0]
		for _, id := range result {
			if _, ok := keep[id]; ok {
				filtered = append(filtered, id)
			}
		}
		result = filtered
	}
	return result
}
