package change

import "sort"

// Apply replays changes over base and returns the resulting lines. Changes
// are spliced bottom-up by base position, so the result does not depend on
// the order they were stored in. base is not modified.
func Apply(base []string, changes []Change) []string {
	ordered := make([]Change, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, ei := ordered[i].BaseRange()
		sj, ej := ordered[j].BaseRange()
		if si != sj {
			return si > sj
		}
		return ei > ej
	})

	out := make([]string, len(base))
	copy(out, base)

	for _, c := range ordered {
		start, end := c.BaseRange()
		start = clamp(start, 0, len(out))
		end = clamp(end, start, len(out))

		replacement := c.Lines()
		next := make([]string, 0, len(out)-(end-start)+len(replacement))
		next = append(next, out[:start]...)
		next = append(next, replacement...)
		next = append(next, out[end:]...)
		out = next
	}

	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
