package align

import (
	"github.com/antzucaro/matchr"
)

// Op classifies how a reference token relates to the hypothesis.
type Op int

const (
	// OpMatch means the hypothesis contains the token verbatim.
	OpMatch Op = iota

	// OpSubstitute means a different word was recognised in the token's
	// position.
	OpSubstitute

	// OpDelete means the token has no counterpart in the hypothesis.
	OpDelete
)

// Alignment scores per operation. Substituted tokens never score above
// similarScore, however close the recognised word is.
const (
	matchScore      = 95.0
	similarScore    = 60.0
	dissimilarScore = 35.0
)

// similarityThreshold is the Jaro-Winkler score above which a substitution
// counts as a near-miss of the intended word.
const similarityThreshold = 0.80

// AlignedWord is one reference token paired with what the recogniser heard
// in its position.
type AlignedWord struct {
	// Ref is the reference token text (normalised).
	Ref string

	// Hyp is the recognised word for substitutions and matches; empty for
	// deletions.
	Hyp string

	// HypIndex is the index into the hypothesis slice, or -1 for deletions.
	HypIndex int

	Op    Op
	Score float64
}

// Result is the outcome of aligning a hypothesis against a reference.
type Result struct {
	// Words has exactly one entry per reference token, in order.
	Words []AlignedWord

	// Extras are hypothesis words with no reference counterpart
	// (insertions), in hypothesis order.
	Extras []string
}

// Align computes a minimum-edit-distance alignment of hyp against ref and
// scores each reference token: verbatim match 95, similar substitution 60,
// dissimilar substitution 35, deletion 0.
func Align(ref, hyp []string) Result {
	n, m := len(ref), len(hyp)

	// dp[i][j] is the edit distance between ref[:i] and hyp[:j].
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
		dp[i][0] = i
	}
	for j := 0; j <= m; j++ {
		dp[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := 1
			if ref[i-1] == hyp[j-1] {
				cost = 0
			}
			dp[i][j] = min3(
				dp[i-1][j]+1,      // delete ref[i-1]
				dp[i][j-1]+1,      // insert hyp[j-1]
				dp[i-1][j-1]+cost, // match / substitute
			)
		}
	}

	// Backtrace. Walks from (n, m) to (0, 0) preferring the diagonal so
	// matches and substitutions win over delete/insert pairs.
	words := make([]AlignedWord, 0, n)
	var extras []string
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && dp[i][j] == dp[i-1][j-1]+substCost(ref[i-1], hyp[j-1]):
			words = append(words, scoreAligned(ref[i-1], hyp[j-1], j-1))
			i--
			j--
		case i > 0 && dp[i][j] == dp[i-1][j]+1:
			words = append(words, AlignedWord{
				Ref:      ref[i-1],
				HypIndex: -1,
				Op:       OpDelete,
			})
			i--
		default:
			extras = append(extras, hyp[j-1])
			j--
		}
	}
	reverseWords(words)
	reverseStrings(extras)

	return Result{Words: words, Extras: extras}
}

// Similar reports whether two words are close enough that a substitution
// should count as a near-miss. Words are similar when their Jaro-Winkler
// score clears the threshold or their primary Double Metaphone codes agree.
func Similar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if matchr.JaroWinkler(a, b, false) >= similarityThreshold {
		return true
	}
	pa, _ := matchr.DoubleMetaphone(a)
	pb, _ := matchr.DoubleMetaphone(b)
	return pa != "" && pa == pb
}

// MissingRatio returns the fraction of reference tokens with no counterpart
// in the hypothesis. Returns 0 for an empty reference.
func MissingRatio(words []AlignedWord) float64 {
	if len(words) == 0 {
		return 0
	}
	missing := 0
	for _, w := range words {
		if w.Op == OpDelete {
			missing++
		}
	}
	return float64(missing) / float64(len(words))
}

func scoreAligned(ref, hyp string, hypIndex int) AlignedWord {
	w := AlignedWord{Ref: ref, Hyp: hyp, HypIndex: hypIndex}
	switch {
	case ref == hyp:
		w.Op = OpMatch
		w.Score = matchScore
	case Similar(ref, hyp):
		w.Op = OpSubstitute
		w.Score = similarScore
	default:
		w.Op = OpSubstitute
		w.Score = dissimilarScore
	}
	return w
}

func substCost(a, b string) int {
	if a == b {
		return 0
	}
	return 1
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func reverseWords(s []AlignedWord) {
	for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
}

func reverseStrings(s []string) {
	for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
}
