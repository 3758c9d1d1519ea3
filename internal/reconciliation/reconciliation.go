// Package reconciliation decides whether a second-pass correction
// candidate is safe to accept, and merges accepted corrections back
// into the original word sequence to produce the final transcript.
package reconciliation

import (
	"regexp"
	"sort"
	"strings"

	"secondpass/internal/clustering"

	"github.com/agnivade/levenshtein"
)

const (
	ratioRejectThreshold = 0.70
	unintelligibleMarker = "[unintelligible]"
)

var (
	nonWordOrSpace = regexp.MustCompile(`[^\w\s]`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	purePunct      = regexp.MustCompile(`^[.,!?;:'"()\-]+$`)
)

// Evaluation is the outcome of checking a single correction candidate
// against the hallucination guard.
type Evaluation struct {
	OriginalText       string
	CorrectedText      string
	LevenshteinDistance int
	ShouldApply        bool
	Reason             string
}

// Evaluate implements spec §4.6.1. wordsInWindow is every original
// word with start >= clipStart and end <= clipEnd; originalText is
// their space-joined concatenation.
func Evaluate(wordsInWindow []clustering.Word, correctedText string, clipStart, clipEnd float64) Evaluation {
	originalText := joinWords(wordsInWindow)
	trimmedCorrection := strings.ToLower(strings.TrimSpace(correctedText))

	cleanedOriginal := clean(originalText)
	cleanedCorrection := clean(correctedText)

	distance := levenshtein.ComputeDistance(cleanedOriginal, cleanedCorrection)

	eval := Evaluation{
		OriginalText:        originalText,
		CorrectedText:       correctedText,
		LevenshteinDistance: distance,
	}

	if trimmedCorrection == "" || trimmedCorrection == unintelligibleMarker || len(cleanedCorrection) < 3 {
		eval.Reason = "empty or unintelligible"
		return eval
	}

	maxLen := len(cleanedOriginal)
	if len(cleanedCorrection) > maxLen {
		maxLen = len(cleanedCorrection)
	}
	var ratio float64
	if maxLen > 0 {
		ratio = float64(distance) / float64(maxLen)
	}

	if ratio > ratioRejectThreshold {
		eval.Reason = "Levenshtein ratio too high"
		return eval
	}

	if cleanedOriginal == cleanedCorrection {
		eval.Reason = "No changes"
		return eval
	}

	eval.ShouldApply = true
	return eval
}

// clean lowercases, strips all non-word/non-space runes, collapses
// whitespace, and trims — the normalization spec §4.6.1 prescribes so
// surface differences (punctuation, capitalization) never contribute
// to the edit distance.
func clean(s string) string {
	s = strings.ToLower(s)
	s = nonWordOrSpace.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func joinWords(words []clustering.Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// WordsInWindow returns the sub-slice of an ordered word list whose
// [start, end] lies fully inside [clipStart, clipEnd], both bounds
// inclusive.
func WordsInWindow(words []clustering.Word, clipStart, clipEnd float64) []clustering.Word {
	out := make([]clustering.Word, 0)
	for _, w := range words {
		if w.Start >= clipStart && w.End <= clipEnd {
			out = append(out, w)
		}
	}
	return out
}

// CorrectionInput is one candidate correction as seen by Merge: a
// clip window, the text proposed for it, and whether Evaluate accepted
// it.
type CorrectionInput struct {
	ClipStart     float64
	ClipEnd       float64
	CorrectedText string
	ShouldApply   bool
}

// MergeResult is the reconciled transcript plus bookkeeping counts.
type MergeResult struct {
	Text               string
	AppliedCorrections int
	SkippedCorrections int
}

// Merge implements spec §4.6.2: sort corrections by ascending
// clipStart, walk a single cursor through the original words, and for
// each accepted correction emit the correction text as one token in
// place of the words it covers. Because Merge sorts its input itself,
// corrections may be passed in any order; it does not re-verify that
// their windows are non-overlapping.
func Merge(original []clustering.Word, corrections []CorrectionInput) MergeResult {
	sorted := make([]CorrectionInput, len(corrections))
	copy(sorted, corrections)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ClipStart < sorted[j].ClipStart })

	tokens := make([]string, 0, len(original))
	cursor := 0
	result := MergeResult{}

	for _, c := range sorted {
		if !c.ShouldApply {
			result.SkippedCorrections++
			continue
		}

		for cursor < len(original) && original[cursor].End <= c.ClipStart {
			tokens = append(tokens, original[cursor].Text)
			cursor++
		}

		tokens = append(tokens, c.CorrectedText)
		result.AppliedCorrections++

		for cursor < len(original) && original[cursor].Start < c.ClipEnd {
			cursor++
		}
	}

	for cursor < len(original) {
		tokens = append(tokens, original[cursor].Text)
		cursor++
	}

	result.Text = joinTokens(tokens)
	return result
}

// joinTokens space-joins tokens except where either neighbor is pure
// punctuation, per spec §4.6.2 step 5.
func joinTokens(tokens []string) string {
	var b strings.Builder
	for i, tok := range tokens {
		if i == 0 {
			b.WriteString(tok)
			continue
		}
		prev := tokens[i-1]
		if purePunct.MatchString(tok) || purePunct.MatchString(prev) {
			b.WriteString(tok)
		} else {
			b.WriteString(" ")
			b.WriteString(tok)
		}
	}
	return b.String()
}
