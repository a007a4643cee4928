package usecase

// Similarity returns the normalized edit-distance similarity of a and b in [0, 1].
// Inputs must already be lowercased; no case folding happens here.
// Lengths are measured in runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)

	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshteinDistance(ra, rb)
	return float64(maxLen-distance) / float64(maxLen)
}

// levenshteinDistance computes the edit distance between a and b using the
// full (len(b)+1) x (len(a)+1) matrix. Insertions, deletions and substitutions
// each cost 1.
func levenshteinDistance(a, b []rune) int {
	matrix := make([][]int, len(b)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(a)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(a); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(b); i++ {
		for j := 1; j <= len(a); j++ {
			if b[i-1] == a[j-1] {
				matrix[i][j] = matrix[i-1][j-1]
				continue
			}
			matrix[i][j] = min(
				matrix[i-1][j-1]+1, // substitution
				matrix[i][j-1]+1,   // insertion
				matrix[i-1][j]+1,   // deletion
			)
		}
	}

	return matrix[len(b)][len(a)]
}
