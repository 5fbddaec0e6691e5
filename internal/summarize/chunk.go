package summarize

import "strings"

// closers may follow a sentence terminator: `He said "stop."` or `(see above.)`.
const closers = `"')]}”’»`

// Normalize collapses every run of whitespace into a single space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// endsSentence reports whether word closes a sentence: it ends in '.', '!'
// or '?', optionally followed by closing quotes or brackets.
func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, closers)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// Sentences groups words into sentences. Trailing words without a terminator
// form a final sentence.
func Sentences(words []string) [][]string {
	var out [][]string
	start := 0
	for i, w := range words {
		if endsSentence(w) {
			out = append(out, words[start:i+1])
			start = i + 1
		}
	}
	if start < len(words) {
		out = append(out, words[start:])
	}
	return out
}

// Chunk packs whole sentences into chunks of at most maxWords words. A
// sentence longer than maxWords becomes a chunk of its own and is never
// split. Joining the chunks with single spaces reproduces the input words.
func Chunk(words []string, maxWords int) []string {
	var chunks []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
		}
	}

	for _, sentence := range Sentences(words) {
		if len(current) > 0 && len(current)+len(sentence) > maxWords {
			flush()
		}
		current = append(current, sentence...)
		if len(current) >= maxWords {
			flush()
		}
	}
	flush()
	return chunks
}

// firstRunes returns the first n runes of s.
func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// firstWords returns the first n words of s joined by single spaces.
func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
