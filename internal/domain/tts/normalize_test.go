package tts

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "counter before kanji", in: "3人", want: "３人"},
		{name: "multi digit run", in: "10日後", want: "１０日後"},
		{name: "before hiragana", in: "2つ", want: "２つ"},
		{name: "before katakana", in: "5メートル", want: "５メートル"},
		{name: "standalone digits kept", in: "abc 123", want: "abc 123"},
		{name: "digits followed by space", in: "3 人", want: "3 人"},
		{name: "digits at end", in: "合計は42", want: "合計は42"},
		{name: "run broken by dot", in: "v2.0版", want: "v2.０版"},
		{name: "every qualifying run", in: "1と2本", want: "１と２本"},
		{name: "no digits", in: "こんにちは", want: "こんにちは"},
		{name: "empty", in: "", want: ""},
		{name: "already fullwidth", in: "３人", want: "３人"},
		{name: "invalid utf8 kept", in: "abc\xffdef", want: "abc\xffdef"},
		{name: "invalid utf8 after digits", in: "7\xff人", want: "7\xff人"},
		{name: "invalid utf8 before counter", in: "\xfe3人", want: "\xfe３人"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"3人と4匹", "2024年5月1日", "x9y", "100円です"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
