package infrastructure

import (
	"context"
	stderrors "errors"
	"testing"

	"mochimon-server-go/internal/platform/errors"
)

type stubClient struct {
	data []byte
	err  error
	seen string
}

func (s *stubClient) Synthesize(_ context.Context, text string, _ int) ([]byte, error) {
	s.seen = text
	return s.data, s.err
}

func TestInstrumentPassesThrough(t *testing.T) {
	stub := &stubClient{data: []byte("RIFF")}
	client := Instrument("stub", stub, nil)

	data, err := client.Synthesize(context.Background(), "こんにちは", 1)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(data) != "RIFF" || stub.seen != "こんにちは" {
		t.Fatalf("unexpected passthrough: data=%q seen=%q", data, stub.seen)
	}
}

func TestInstrumentKeepsError(t *testing.T) {
	want := stderrors.New("engine down")
	client := Instrument("stub", &stubClient{err: want}, nil)

	if _, err := client.Synthesize(context.Background(), "x", 1); !stderrors.Is(err, want) {
		t.Fatalf("expected wrapped engine error, got %v", err)
	}
}

func TestNewSynthesisClient(t *testing.T) {
	if _, err := NewSynthesisClient(ProviderConfig{}, nil); err != nil {
		t.Fatalf("default provider should build: %v", err)
	}

	_, err := NewSynthesisClient(ProviderConfig{Type: "edge"}, nil)
	if !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestEngineStateSeesThroughInstrumentation(t *testing.T) {
	client, err := NewSynthesisClient(ProviderConfig{}, nil)
	if err != nil {
		t.Fatalf("NewSynthesisClient() error = %v", err)
	}
	if got := EngineState(client); got != "closed" {
		t.Fatalf("EngineState() = %q, want closed", got)
	}
	if got := EngineState(Instrument("stub", &stubClient{}, nil)); got != "unknown" {
		t.Fatalf("EngineState(stub) = %q, want unknown", got)
	}
}
