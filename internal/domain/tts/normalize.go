package tts

import (
	"strings"
	"unicode/utf8"
)

// Normalize rewrites every run of ASCII digits that is immediately followed
// by a kanji, hiragana or katakana character into fullwidth digits, so the
// synthesis engine reads "3人" as a counter rather than a standalone number.
// Digits anywhere else are left alone. Normalize is idempotent.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		if !isASCIIDigit(rune(text[i])) {
			// Invalid UTF-8 bytes are copied through untouched.
			_, size := utf8.DecodeRuneInString(text[i:])
			b.WriteString(text[i : i+size])
			i += size
			continue
		}

		j := i
		for j < len(text) && isASCIIDigit(rune(text[j])) {
			j++
		}
		next, _ := utf8.DecodeRuneInString(text[j:])
		if j < len(text) && isJapaneseWord(next) {
			for _, d := range text[i:j] {
				b.WriteRune(d - '0' + '０')
			}
		} else {
			b.WriteString(text[i:j])
		}
		i = j
	}
	return b.String()
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// isJapaneseWord matches the ranges 一-龯, ぁ-ん and ァ-ヶ.
func isJapaneseWord(r rune) bool {
	switch {
	case r >= '一' && r <= '龯':
		return true
	case r >= 'ぁ' && r <= 'ん':
		return true
	case r >= 'ァ' && r <= 'ヶ':
		return true
	}
	return false
}
