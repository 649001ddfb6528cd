package faceindex

// SplitEvenly selects at most k evenly spaced items from items.
//
// If there are no more than k items all of them are returned. Otherwise the stride
// is len(items)/(k-1): the first k-1 picks are taken at that stride starting from
// the first item and the last item is always the final pick. The result never
// depends on anything but its input.
func SplitEvenly[T any](items []T, k int) []T {
	n := len(items)
	switch {
	case k <= 0 || n == 0:
		return nil
	case n <= k:
		return items
	case k == 1:
		return items[:1]
	}

	step := n / (k - 1)
	picked := make([]int, 0, k)
	seen := make(map[int]struct{}, k)
	add := func(i int) {
		if _, ok := seen[i]; ok {
			return
		}
		seen[i] = struct{}{}
		picked = append(picked, i)
	}
	for j := 0; j < k-1; j++ {
		add(min(n-1, j*step))
	}
	add(n - 1)

	out := make([]T, len(picked))
	for i, idx := range picked {
		out[i] = items[idx]
	}
	return out
}
