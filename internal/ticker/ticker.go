package ticker

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ErrEmptyInput is returned when no tickers remain after normalization.
var ErrEmptyInput = errors.New("no tickers found in input")

// Strategy selects how raw input is parsed.
type Strategy string

const (
	StrategyAuto      Strategy = "auto"
	StrategySplit     Strategy = "split"
	StrategyInterpret Strategy = "interpret"
)

// Interpreter extracts ticker symbols from free text.
type Interpreter interface {
	InterpretTickers(ctx context.Context, text string) ([]string, error)
}

// symbolPattern matches a plausible symbol: 1-5 letters with an optional
// share-class suffix such as BRK.B or RDS-A.
var symbolPattern = regexp.MustCompile(`^[A-Za-z]{1,5}([.\-][A-Za-z]{1,2})?$`)

var separators = regexp.MustCompile(`[\s,;]+`)

// Normalizer turns raw user input into an ordered, de-duplicated list of
// uppercase ticker symbols.
type Normalizer struct {
	strategy    Strategy
	interpreter Interpreter
	logger      *zap.Logger
}

// NewNormalizer creates a normalizer. interpreter may be nil, in which case
// natural-language input falls back to local token extraction.
func NewNormalizer(strategy Strategy, interpreter Interpreter, logger *zap.Logger) *Normalizer {
	if strategy == "" {
		strategy = StrategyAuto
	}
	return &Normalizer{strategy: strategy, interpreter: interpreter, logger: logger}
}

// Normalize parses text into tickers. It fails with ErrEmptyInput when
// nothing usable remains.
func (n *Normalizer) Normalize(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	var raw []string
	switch {
	case n.strategy == StrategySplit:
		raw = Split(text)
	case n.strategy == StrategyAuto && IsSimpleList(text):
		raw = Split(text)
	default:
		raw = n.interpret(ctx, text)
	}

	tickers := Dedupe(raw)
	if len(tickers) == 0 {
		return nil, ErrEmptyInput
	}
	return tickers, nil
}

func (n *Normalizer) interpret(ctx context.Context, text string) []string {
	if n.interpreter == nil {
		n.logger.Debug("no interpreter configured, extracting uppercase tokens")
		return UppercaseTokens(text)
	}

	tickers, err := n.interpreter.InterpretTickers(ctx, text)
	if err != nil {
		n.logger.Warn("ticker interpretation failed, extracting uppercase tokens", zap.Error(err))
		return UppercaseTokens(text)
	}

	kept := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.TrimPrefix(strings.TrimSpace(t), "$")
		if !symbolPattern.MatchString(t) {
			n.logger.Info("dropping interpreted value that is not a symbol", zap.String("value", t))
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// IsSimpleList reports whether text is a plain list of symbols, such as
// "MSFT, aapl googl", that can be split without interpretation.
func IsSimpleList(text string) bool {
	tokens := tokens(text)
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !symbolPattern.MatchString(tok) {
			return false
		}
	}
	// "apple and msft" splits into valid-looking tokens; a list without
	// commas counts as simple only if each token is already uppercase or
	// there is a single token.
	if len(tokens) > 1 && !strings.ContainsAny(text, ",;") {
		for _, tok := range tokens {
			if tok != strings.ToUpper(tok) {
				return false
			}
		}
	}
	return true
}

// Split breaks text on commas, semicolons and whitespace.
func Split(text string) []string {
	return tokens(text)
}

// UppercaseTokens returns tokens written in uppercase in the source text that
// look like symbols. It is the fallback for natural-language input.
func UppercaseTokens(text string) []string {
	var out []string
	for _, tok := range tokens(text) {
		tok = strings.Trim(tok, `.!?:()"'`)
		tok = strings.TrimPrefix(tok, "$")
		if len(tok) < 2 || tok != strings.ToUpper(tok) {
			continue
		}
		if symbolPattern.MatchString(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// Dedupe trims, strips a leading "$", uppercases and removes duplicates while
// keeping first-seen order. Empty entries are dropped.
func Dedupe(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(r), "$"))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func tokens(text string) []string {
	var out []string
	for _, tok := range separators.Split(text, -1) {
		tok = strings.TrimPrefix(strings.TrimSpace(tok), "$")
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
