package main

import (
	"fmt"
	"sort"
	"strings"
)

// PrettyFormatNumberList formats the numbers collapsing consecutive runs, "1 - 3, 5"
func PrettyFormatNumberList(numbers []int) string {
	if len(numbers) < 1 {
		return "None"
	}

	sorted := make([]int, len(numbers))
	copy(sorted, numbers)
	sort.Ints(sorted)

	var out []string

	seqStart := sorted[0]
	last := sorted[0]
	flush := func() {
		if seqStart != last {
			out = append(out, fmt.Sprintf("%d - %d", seqStart, last))
		} else {
			out = append(out, fmt.Sprintf("%d", last))
		}
	}

	for _, n := range sorted[1:] {
		if n > last+1 {
			flush()
			seqStart = n
		}

		last = n
	}

	flush()
	return strings.Join(out, ", ")
}
