package model

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Extractive summarizes offline by ranking sentences on word frequency with
// stopwords filtered. It needs no network and never fails, which makes it the
// fallback summarizer when no hosted model is configured.
type Extractive struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

var _ Summarizer = (*Extractive)(nil)

// NewExtractive creates a frequency-based sentence ranker.
func NewExtractive() *Extractive {
	return &Extractive{
		tokenPattern:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentencePattern: regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`),
		stopwords:       defaultStopwords(),
	}
}

// Summarize keeps the highest scoring sentences, in their original order,
// while the total stays within maxWords.
func (s *Extractive) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if maxWords <= 0 {
		maxWords = 60
	}

	var sentences []string
	for _, sent := range s.sentencePattern.FindAllString(text, -1) {
		if sent = strings.TrimSpace(sent); sent != "" {
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) == 0 {
		return "", nil
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			if _, ok := s.stopwords[tok]; !ok {
				freq[tok]++
			}
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if len(toks) > 0 {
			score /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	var selected []int
	words := 0
	for _, sc := range scores {
		n := len(strings.Fields(sentences[sc.idx]))
		if words+n > maxWords {
			continue
		}
		selected = append(selected, sc.idx)
		words += n
	}
	if len(selected) == 0 {
		// Even the best sentence is too long: cut it to the budget.
		best := strings.Fields(sentences[scores[0].idx])
		return strings.Join(best[:maxWords], " "), nil
	}

	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func (s *Extractive) tokens(text string) []string {
	return s.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
