package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openAIClientConfig configures an openaiClient. Provider distinguishes
// "openai" (api.openai.com, API key required) from "openai-compatible"
// (a self-hosted endpoint, API key optional), the same split
// internal/embedding's OpenAIProvider makes for embeddings.
type openAIClientConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// openaiClient talks to OpenAI's /v1/chat/completions endpoint or any
// OpenAI-compatible equivalent.
type openaiClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	name       string
}

func newOpenAIClient(cfg openAIClientConfig) (*openaiClient, error) {
	baseURL := cfg.BaseURL
	isOpenAI := cfg.Provider == "openai"
	if baseURL == "" {
		if isOpenAI {
			baseURL = "https://api.openai.com"
		} else {
			return nil, fmt.Errorf("openai-compatible chat provider requires a base URL (set CONVSEARCH_CHAT_BASE_URL)")
		}
	}

	if isOpenAI && cfg.APIKey == "" {
		return nil, fmt.Errorf("openai chat provider requires an API key (set CONVSEARCH_CHAT_API_KEY)")
	}

	model := cfg.Model
	if model == "" {
		if isOpenAI {
			model = "gpt-4o-mini"
		} else {
			return nil, fmt.Errorf("openai-compatible chat provider requires a model name (set CONVSEARCH_CHAT_MODEL)")
		}
	}

	name := "openai"
	if !isOpenAI {
		name = "openai-compatible"
	}

	return &openaiClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     cfg.APIKey,
		name:       name,
	}, nil
}

func (c *openaiClient) Provider() string { return c.name }

func (c *openaiClient) Generate(model, prompt string) (string, error) {
	return c.complete(model, prompt, false)
}

func (c *openaiClient) GenerateJSON(model, prompt string) (string, error) {
	return c.complete(model, prompt, true)
}

// PickBestModel has no discovery endpoint on OpenAI-compatible APIs; the
// configured model is the only one this client knows about.
func (c *openaiClient) PickBestModel() (string, error) {
	return c.model, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *responseFmt  `json:"response_format,omitempty"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openaiClient) complete(model, prompt string, wantJSON bool) (string, error) {
	if model == "" {
		model = c.model
	}

	content, err := c.doCompletion(model, prompt, wantJSON)
	if err != nil && wantJSON {
		// Some OpenAI-compatible servers (local llama.cpp, older vLLM) reject
		// response_format entirely. Retry once in plain mode and salvage the
		// JSON body out of a markdown fence if the model wrapped it in one.
		if retryErr := err; isUnsupportedResponseFormat(retryErr) {
			content, err = c.doCompletion(model, prompt, false)
		}
	}
	if err != nil {
		return "", err
	}
	if wantJSON {
		content = stripJSONFence(content)
	}
	return content, nil
}

func (c *openaiClient) doCompletion(model, prompt string, wantJSON bool) (string, error) {
	req := chatCompletionRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if wantJSON {
		req.ResponseFormat = &responseFmt{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequest("POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", c.name, sanitizeAPIKey(err, c.apiKey))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &chatHTTPError{
			StatusCode:   resp.StatusCode,
			wantedFormat: wantJSON,
			Message:      sanitizeErrorText(string(respBody), c.apiKey),
			provider:     c.name,
		}
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("%s error: %s", c.name, sanitizeErrorText(result.Error.Message, c.apiKey))
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", c.name)
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// chatHTTPError carries enough context for complete to decide whether a
// failure was caused by an unsupported response_format request.
type chatHTTPError struct {
	StatusCode   int
	wantedFormat bool
	Message      string
	provider     string
}

func (e *chatHTTPError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.provider, e.StatusCode, e.Message)
}

// isUnsupportedResponseFormat reports whether err looks like a 4xx
// rejection of the response_format field rather than a real failure.
func isUnsupportedResponseFormat(err error) bool {
	he, ok := err.(*chatHTTPError)
	if !ok || !he.wantedFormat {
		return false
	}
	return he.StatusCode >= 400 && he.StatusCode < 500
}

// stripJSONFence removes a surrounding ```json ... ``` or ``` ... ```
// markdown fence some chat models wrap structured output in, despite being
// asked for raw JSON.
func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// sanitizeErrorText removes any occurrence of the API key from response
// text to prevent credential leakage in logs or user-facing output.
func sanitizeErrorText(msg, apiKey string) string {
	if apiKey == "" {
		return msg
	}
	return strings.ReplaceAll(msg, apiKey, "[REDACTED]")
}

func sanitizeAPIKey(err error, apiKey string) error {
	if apiKey == "" || err == nil {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), apiKey, "[REDACTED]"))
}
