// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package dispatch

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxSuggestDistance is the largest edit distance still worth suggesting.
const maxSuggestDistance = 2

var dmp = diffmatchpatch.New()

// distance is the Levenshtein distance between a and b.
func distance(a, b string) int {
	return dmp.DiffLevenshtein(dmp.DiffMain(a, b, false))
}

// closest returns the candidate nearest to name, or "" when none is close
// enough. Earlier candidates win ties.
func closest(name string, candidates []string) string {
	best, bestDist := "", maxSuggestDistance+1
	for _, c := range candidates {
		if c == name {
			continue
		}
		d := distance(name, c)
		// a distance equal to the name's length means nothing in common
		if d >= len([]rune(name)) && d >= len([]rune(c)) {
			continue
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
