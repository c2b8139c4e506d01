package ticker

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/TobiSchelling/irevents/internal/llm"
)

type fakeInterpreter struct {
	tickers []string
	err     error
	calls   int
}

func (f *fakeInterpreter) InterpretTickers(_ context.Context, _ string) ([]string, error) {
	f.calls++
	return f.tickers, f.err
}

type mockProvider struct {
	response string
	err      error
	last     llm.Request
}

func (m *mockProvider) Name() string       { return "mock" }
func (m *mockProvider) IsConfigured() bool { return true }
func (m *mockProvider) Generate(_ context.Context, req llm.Request) (string, error) {
	m.last = req
	return m.response, m.err
}

func TestNormalizeDuplicatesCollapse(t *testing.T) {
	n := NewNormalizer(StrategyAuto, nil, zap.NewNop())
	got, err := n.Normalize(context.Background(), "AAPL, aapl , Aapl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"AAPL"}) {
		t.Errorf("expected [AAPL], got %v", got)
	}
}

func TestNormalizeKeepsFirstSeenOrder(t *testing.T) {
	n := NewNormalizer(StrategyAuto, nil, zap.NewNop())
	got, err := n.Normalize(context.Background(), "msft; GOOGL,msft  brk.b, $nvda")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"MSFT", "GOOGL", "BRK.B", "NVDA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNormalizeSimpleListSkipsInterpreter(t *testing.T) {
	interp := &fakeInterpreter{tickers: []string{"XXX"}}
	n := NewNormalizer(StrategyAuto, interp, zap.NewNop())
	if _, err := n.Normalize(context.Background(), "MSFT, AAPL"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if interp.calls != 0 {
		t.Errorf("expected interpreter not to be called, got %d calls", interp.calls)
	}
}

func TestNormalizeNaturalLanguageUsesInterpreter(t *testing.T) {
	interp := &fakeInterpreter{tickers: []string{"aapl", "MSFT", "AAPL"}}
	n := NewNormalizer(StrategyAuto, interp, zap.NewNop())
	got, err := n.Normalize(context.Background(), "their main competitor AAPL and also msft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if interp.calls != 1 {
		t.Errorf("expected one interpreter call, got %d", interp.calls)
	}
	if !reflect.DeepEqual(got, []string{"AAPL", "MSFT"}) {
		t.Errorf("expected [AAPL MSFT], got %v", got)
	}
}

func TestNormalizeInterpreterFailureFallsBack(t *testing.T) {
	interp := &fakeInterpreter{err: errors.New("service down")}
	n := NewNormalizer(StrategyAuto, interp, zap.NewNop())
	got, err := n.Normalize(context.Background(), "their main competitor AAPL and also msft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"AAPL"}) {
		t.Errorf("expected uppercase fallback [AAPL], got %v", got)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	n := NewNormalizer(StrategyAuto, &fakeInterpreter{}, zap.NewNop())
	for _, in := range []string{"", "   ", " , ;; "} {
		if _, err := n.Normalize(context.Background(), in); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Normalize(%q): expected ErrEmptyInput, got %v", in, err)
		}
	}
}

func TestNormalizeDropsInterpretedNonSymbols(t *testing.T) {
	interp := &fakeInterpreter{tickers: []string{"Apple Inc.", "$msft", "BRK.B", "  ", "Alphabet"}}
	n := NewNormalizer(StrategyInterpret, interp, zap.NewNop())
	got, err := n.Normalize(context.Background(), "apple, microsoft and berkshire")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"MSFT", "BRK.B"}) {
		t.Errorf("expected [MSFT BRK.B], got %v", got)
	}

	interp.tickers = []string{"Apple Inc."}
	if _, err := n.Normalize(context.Background(), "apple"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput when nothing is a symbol, got %v", err)
	}
}

func TestNormalizeInterpreterReturnsNothing(t *testing.T) {
	n := NewNormalizer(StrategyInterpret, &fakeInterpreter{tickers: nil}, zap.NewNop())
	if _, err := n.Normalize(context.Background(), "tell me about the weather"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestNormalizeSplitStrategy(t *testing.T) {
	n := NewNormalizer(StrategySplit, &fakeInterpreter{tickers: []string{"NOPE"}}, zap.NewNop())
	got, err := n.Normalize(context.Background(), "apple and msft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"APPLE", "AND", "MSFT"}) {
		t.Errorf("unexpected split result %v", got)
	}
}

func TestIsSimpleList(t *testing.T) {
	cases := map[string]bool{
		"MSFT":                 true,
		"msft":                 true,
		"MSFT, aapl":           true,
		"MSFT AAPL GOOGL":      true,
		"apple and msft":       false,
		"Microsoft, Apple Inc": false,
		"what about tesla?":    false,
	}
	for in, want := range cases {
		if got := IsSimpleList(in); got != want {
			t.Errorf("IsSimpleList(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLLMInterpreter(t *testing.T) {
	mock := &mockProvider{response: "```json\n{\"tickers\": [\"AAPL\", \"MSFT\"]}\n```"}
	got, err := NewLLMInterpreter(mock).InterpretTickers(context.Background(), "apple and microsoft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"AAPL", "MSFT"}) {
		t.Errorf("unexpected tickers %v", got)
	}
	if mock.last.Schema == nil {
		t.Error("expected request to carry a schema")
	}
}

func TestLLMInterpreterMalformed(t *testing.T) {
	mock := &mockProvider{response: `{"tickers": "AAPL"}`}
	if _, err := NewLLMInterpreter(mock).InterpretTickers(context.Background(), "apple"); err == nil {
		t.Error("expected decode error for wrong shape")
	}
}
