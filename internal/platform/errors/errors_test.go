package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "error with cause",
			err: Wrap(KindSynthesis, "voicevox.audio_query", "engine rejected request",
				errors.New("status 500")),
			contains: []string{"[synthesis:voicevox.audio_query]", "engine rejected request", "status 500"},
		},
		{
			name:     "error without cause",
			err:      New(KindStaleBlob, "tts.refresh", "audio object missing"),
			contains: []string{"[stale_blob:tts.refresh]", "audio object missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				if !strings.Contains(errStr, substr) {
					t.Errorf("error string %q does not contain %q", errStr, substr)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(KindStorage, "test", "wrapped", originalErr)

	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Unwrap should return the original error")
	}
}

func TestWrapKeepsInnerKind(t *testing.T) {
	inner := New(KindSynthesis, "voicevox.synthesis", "engine returned 503")
	outer := Wrap(KindStorage, "tts.synthesize", "synthesis failed", fmt.Errorf("call: %w", inner))

	if outer.Kind != KindSynthesis {
		t.Fatalf("expected inner kind %q, got %q", KindSynthesis, outer.Kind)
	}
	if Wrap(KindStorage, "noop", "noop", nil) != nil {
		t.Fatal("wrapping nil should return nil")
	}
}

func TestIsKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		expected bool
	}{
		{
			name:     "direct error kind match",
			err:      New(KindConfig, "test", "message"),
			kind:     KindConfig,
			expected: true,
		},
		{
			name:     "wrapped error kind match",
			err:      fmt.Errorf("outer: %w", Wrap(KindStorage, "test", "message", errors.New("cause"))),
			kind:     KindStorage,
			expected: true,
		},
		{
			name:     "error kind mismatch",
			err:      New(KindConfig, "test", "message"),
			kind:     KindDomain,
			expected: false,
		},
		{
			name:     "non-typed error",
			err:      errors.New("plain error"),
			kind:     KindConfig,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsKind(tt.err, tt.kind)
			if result != tt.expected {
				t.Errorf("IsKind() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(New(KindSynthesis, "op", "msg")); got != KindSynthesis {
		t.Fatalf("KindOf() = %q, want %q", got, KindSynthesis)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Fatalf("KindOf() = %q, want %q", got, KindUnknown)
	}
}
