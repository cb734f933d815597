// Package tokenizer provides token counting used to budget evidence blocks
// before they are placed into synthesis prompts.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenizer counts tokens for a given text.
type Tokenizer interface {
	CountTokens(text string) int
}

var _ Tokenizer = (*Heuristic)(nil)

// Heuristic approximates token counts without a model vocabulary.
// Latin words and numbers count as one token per word, CJK as one per rune,
// punctuation as one each. Good enough for budget trimming; use the tiktoken
// adapter when exact counts matter.
type Heuristic struct{}

// NewHeuristic creates an approximate tokenizer.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) CountTokens(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) && r < 0x2E80:
			if !inWord {
				count++
				inWord = true
			}
		case unicode.IsDigit(r):
			if !inWord {
				count++
				inWord = true
			}
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			count++
			inWord = false
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			count++
			inWord = false
		default:
			inWord = false
		}
	}
	return count
}

// TrimToBudget cuts text to approximately maxTokens, preserving whole lines.
func TrimToBudget(t Tokenizer, text string, maxTokens int) string {
	if maxTokens <= 0 || t.CountTokens(text) <= maxTokens {
		return text
	}
	lines := strings.Split(text, "\n")
	var b strings.Builder
	used := 0
	for _, line := range lines {
		cost := t.CountTokens(line)
		if used+cost > maxTokens {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
		used += cost
	}
	return strings.TrimRight(b.String(), "\n")
}
