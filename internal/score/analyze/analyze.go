// Package analyze condenses a scored word sequence into the summary block
// of the result document: the words and phonemes a learner should practise,
// likely phoneme confusions, hesitation positions, and coverage counts.
package analyze

import (
	"sort"

	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/score/align"
)

// topN caps the highlighted weak/missing word lists. More than a handful is
// noise to a learner.
const topN = 5

// weakPhonemeMin is the minimum occurrences before a phoneme is ranked;
// one bad sample proves nothing.
const weakPhonemeMin = 2

// Summarize builds the analysis summary from the scored words and the
// recognised extras.
func Summarize(words []score.Word, extras []string) score.Summary {
	s := score.Summary{
		Completeness: completeness(words),
	}

	s.WeakWords = weakWords(words)
	s.MissingWords = missingWords(words)
	s.WeakPhonemes = weakPhonemes(words)
	s.Confusions = confusions(words, extras)
	s.Hesitations = hesitations(words)

	return s
}

// weakWords returns up to topN distinct word texts ordered worst first.
func weakWords(words []score.Word) []string {
	type cand struct {
		text  string
		score float64
	}
	var cands []cand
	seen := map[string]bool{}
	for i := range words {
		if words[i].Status != score.StatusWeak && words[i].Status != score.StatusPoor {
			continue
		}
		if seen[words[i].Text] {
			continue
		}
		seen[words[i].Text] = true
		cands = append(cands, cand{text: words[i].Text, score: words[i].Score})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score < cands[j].score })
	if len(cands) > topN {
		cands = cands[:topN]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.text
	}
	return out
}

func missingWords(words []score.Word) []string {
	var out []string
	seen := map[string]bool{}
	for i := range words {
		if words[i].Status != score.StatusMissing || seen[words[i].Text] {
			continue
		}
		seen[words[i].Text] = true
		out = append(out, words[i].Text)
		if len(out) == topN {
			break
		}
	}
	return out
}

// weakPhonemes ranks phoneme symbols by mean score across the reading,
// keeping only symbols seen at least twice with a mean below the good
// threshold.
func weakPhonemes(words []score.Word) []score.WeakPhoneme {
	sums := map[string]float64{}
	counts := map[string]int{}
	for i := range words {
		for _, p := range words[i].Phonemes {
			sums[p.Symbol] += p.Score
			counts[p.Symbol]++
		}
	}

	var out []score.WeakPhoneme
	for sym, n := range counts {
		if n < weakPhonemeMin {
			continue
		}
		mean := sums[sym] / float64(n)
		if mean >= score.GoodThreshold {
			continue
		}
		out = append(out, score.WeakPhoneme{Symbol: sym, MeanScore: mean, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanScore != out[j].MeanScore {
			return out[i].MeanScore < out[j].MeanScore
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// confusions pairs weak script words with phonetically similar extras: the
// learner most likely said the extra in place of the script word.
func confusions(words []score.Word, extras []string) []score.Confusion {
	counts := map[[2]string]int{}
	for i := range words {
		if words[i].Status != score.StatusPoor && words[i].Status != score.StatusMissing {
			continue
		}
		for _, e := range extras {
			if align.Similar(align.Normalize(words[i].Text), e) {
				counts[[2]string{words[i].Text, e}]++
			}
		}
	}

	var out []score.Confusion
	for pair, n := range counts {
		out = append(out, score.Confusion{Expected: pair[0], Observed: pair[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Expected < out[j].Expected
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func hesitations(words []score.Word) []int {
	var out []int
	for i := range words {
		if words[i].Hesitation {
			out = append(out, i)
		}
	}
	return out
}

func completeness(words []score.Word) score.CompletenessStats {
	st := score.CompletenessStats{Expected: len(words)}
	for i := range words {
		if words[i].Status == score.StatusMissing {
			st.Missing++
		} else {
			st.Credited++
		}
	}
	return st
}
