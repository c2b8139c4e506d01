package ticker

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/irevents/internal/llm"
)

const interpretSystem = `You identify stock ticker symbols of publicly traded companies mentioned in user text.`

const interpretPrompt = `List the stock ticker symbols referred to in the text below.

- Include symbols written explicitly (in any letter case) and companies named by name, resolved to their primary listing symbol.
- Resolve indirect references such as "their main competitor" only when the text makes the company unambiguous.
- Return symbols in the order they are mentioned. Return an empty list if there are none.

Text:
%s`

var tickersSchema = &llm.Schema{
	Type: "object",
	Properties: map[string]*llm.Schema{
		"tickers": {
			Type:        "array",
			Description: "Ticker symbols in order of mention",
			Items:       &llm.Schema{Type: "string"},
		},
	},
}

// LLMInterpreter resolves natural-language input to tickers with an LLM.
type LLMInterpreter struct {
	provider llm.Provider
}

// NewLLMInterpreter creates an interpreter backed by provider.
func NewLLMInterpreter(provider llm.Provider) *LLMInterpreter {
	return &LLMInterpreter{provider: provider}
}

// InterpretTickers implements Interpreter.
func (i *LLMInterpreter) InterpretTickers(ctx context.Context, text string) ([]string, error) {
	resp, err := i.provider.Generate(ctx, llm.Request{
		System:     interpretSystem,
		Prompt:     fmt.Sprintf(interpretPrompt, text),
		SchemaName: "tickers",
		Schema:     tickersSchema,
		MaxTokens:  256,
	})
	if err != nil {
		return nil, fmt.Errorf("interpreting tickers: %w", err)
	}

	var parsed struct {
		Tickers []string `json:"tickers"`
	}
	if err := llm.DecodeJSON(resp, &parsed); err != nil {
		return nil, fmt.Errorf("interpreting tickers: %w", err)
	}
	return parsed.Tickers, nil
}
