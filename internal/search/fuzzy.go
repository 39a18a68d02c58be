package search

// Similarity returns edit-distance similarity between two strings in [0,1]:
// 1 - editDistance(a,b)/max(len(a),len(b)). Two empty strings are identical.
// Adjacent transpositions count as one edit, so common typos like "wrold"
// stay close to "world" (distance 1, similarity 0.8).
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	dist := editDistance(ra, rb)
	return 1.0 - float64(dist)/float64(longest)
}

// editDistance computes optimal string alignment distance (Levenshtein plus
// adjacent transposition) with three rolling rows, O(len(b)) memory.
func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			ins := curr[j-1] + 1
			del := prev[j] + 1
			sub := prev[j-1] + cost
			best := ins
			if del < best {
				best = del
			}
			if sub < best {
				best = sub
			}
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				if tr := prev2[j-2] + 1; tr < best {
					best = tr
				}
			}
			curr[j] = best
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[len(b)]
}
