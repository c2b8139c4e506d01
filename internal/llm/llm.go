package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Request is a single generation call. When Schema is set the provider is
// asked to return JSON conforming to it.
type Request struct {
	System     string
	Prompt     string
	SchemaName string
	Schema     *Schema
	MaxTokens  int
}

// Provider is the interface for LLM providers.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	IsConfigured() bool
}

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string, timeout time.Duration) *OllamaProvider {
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &OllamaProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OllamaProvider) Name() string { return "ollama" }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	return false
}

// Generate sends a prompt to Ollama and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, r Request) (string, error) {
	body := map[string]any{
		"model":    o.Model,
		"messages": chatMessages(r),
		"stream":   false,
		"options": map[string]any{
			"temperature": 0,
		},
	}
	if r.MaxTokens > 0 {
		body["options"].(map[string]any)["num_predict"] = r.MaxTokens
	}
	if r.Schema != nil {
		body["format"] = r.Schema.JSONSchema()
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", nil, body, &result); err != nil {
		return "", classify(fmt.Errorf("ollama: %w", err))
	}
	return result.Message.Content, nil
}

// OpenAIProvider is an OpenAI API provider.
type OpenAIProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider reading its key from apiKeyEnv.
func NewOpenAIProvider(model, apiKeyEnv string, timeout time.Duration) *OpenAIProvider {
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &OpenAIProvider{
		Model:   model,
		APIKey:  os.Getenv(apiKeyEnv),
		BaseURL: defaultOpenAIBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OpenAIProvider) Name() string { return "openai" }

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends a chat completion request, using strict structured output
// when the request carries a schema.
func (o *OpenAIProvider) Generate(ctx context.Context, r Request) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	body := map[string]any{
		"model":       o.Model,
		"messages":    chatMessages(r),
		"temperature": 0,
	}
	if r.MaxTokens > 0 {
		body["max_tokens"] = r.MaxTokens
	}
	if r.Schema != nil {
		name := r.SchemaName
		if name == "" {
			name = "response"
		}
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"strict": true,
				"schema": r.Schema.JSONSchema(),
			},
		}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}
	if err := postJSON(ctx, o.client, strings.TrimRight(o.BaseURL, "/")+"/chat/completions", headers, body, &result); err != nil {
		return "", classify(fmt.Errorf("OpenAI: %w", err))
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}
	if msg := result.Choices[0].Message; msg.Refusal != "" {
		return "", fmt.Errorf("OpenAI refused: %s", msg.Refusal)
	}
	return result.Choices[0].Message.Content, nil
}

func chatMessages(r Request) []map[string]string {
	var msgs []map[string]string
	if r.System != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": r.System})
	}
	return append(msgs, map[string]string{"role": "user", "content": r.Prompt})
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Settings selects and configures a provider.
type Settings struct {
	Provider  string
	Model     string
	APIKeyEnv string
	OllamaURL string
	Timeout   time.Duration
}

// CreateProvider creates an LLM provider based on configuration. An
// unreachable Ollama falls back to OpenAI when OPENAI_API_KEY is set.
func CreateProvider(ctx context.Context, s Settings, logger *zap.Logger) (Provider, error) {
	switch strings.ToLower(s.Provider) {
	case "ollama":
		p := NewOllamaProvider(s.Model, s.OllamaURL, s.Timeout)
		if p.IsConfigured() {
			logger.Info("using Ollama", zap.String("model", s.Model))
			return p, nil
		}
		logger.Warn("Ollama not available, trying OpenAI fallback", zap.String("model", s.Model))
		fallback := NewOpenAIProvider("gpt-4o", "OPENAI_API_KEY", s.Timeout)
		if fallback.IsConfigured() {
			return fallback, nil
		}
		return nil, fmt.Errorf("ollama at %s has no model %q and no OpenAI key is set", s.OllamaURL, s.Model)
	case "openai", "":
		p := NewOpenAIProvider(s.Model, s.APIKeyEnv, s.Timeout)
		if !p.IsConfigured() {
			return nil, fmt.Errorf("OpenAI API key not set (env %s)", s.APIKeyEnv)
		}
		logger.Info("using OpenAI", zap.String("model", s.Model))
		return p, nil
	case "gemini":
		p, err := NewGeminiProvider(ctx, s.Model, s.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		logger.Info("using Gemini", zap.String("model", s.Model))
		return p, nil
	case "anthropic", "claude":
		p := NewAnthropicProvider(s.Model, s.APIKeyEnv)
		if !p.IsConfigured() {
			return nil, fmt.Errorf("Anthropic API key not set (env %s)", s.APIKeyEnv)
		}
		logger.Info("using Anthropic", zap.String("model", s.Model))
		return p, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", s.Provider)
	}
}
