package council

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// httpLLMClient is a thin, provider-agnostic streaming chat client. One
// client is constructed per model identifier; provider selection is
// substring-routed off the model id, mirroring the reference implementation's
// name-based provider lookup.
type httpLLMClient struct {
	modelID  string
	apiKey   string
	endpoint string
	provider string // "gemini" or "openai"
	http     *http.Client
}

// NewLLMClient selects a provider endpoint from modelID and returns a client
// authenticated with apiKey.
func NewLLMClient(modelID, apiKey string) LLMClient {
	c := &httpLLMClient{
		modelID: modelID,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	if strings.Contains(modelID, "gemini") {
		c.provider = "gemini"
		c.endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:streamGenerateContent?alt=sse", modelID)
	} else {
		c.provider = "openai"
		c.endpoint = "https://api.openai.com/v1/chat/completions"
	}
	return c
}

// SendMessage issues a single streaming chat request carrying systemPrompt
// and one user turn, and accumulates text deltas until the stream completes.
// If the stream yields no deltas, the first non-empty output-text item from
// a terminal "message done" event is used instead. It errors only if the
// assembled text remains empty.
func (c *httpLLMClient) SendMessage(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	body, err := c.buildRequestBody(systemPrompt, userMessage)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.provider == "gemini" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%s: http %d", c.modelID, resp.StatusCode)
	}

	full, err := c.accumulate(resp)
	if err != nil {
		return "", err
	}
	if full == "" {
		return "", fmt.Errorf("no content in response from %s", c.modelID)
	}
	return full, nil
}

func (c *httpLLMClient) buildRequestBody(systemPrompt, userMessage string) ([]byte, error) {
	if c.provider == "gemini" {
		return json.Marshal(map[string]any{
			"systemInstruction": map[string]any{
				"parts": []map[string]string{{"text": systemPrompt}},
			},
			"contents": []map[string]any{
				{"role": "user", "parts": []map[string]string{{"text": userMessage}}},
			},
		})
	}
	return json.Marshal(map[string]any{
		"model":  c.modelID,
		"stream": true,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userMessage},
		},
	})
}

// accumulate reads an SSE stream of "data: {...}" lines (terminated by
// "data: [DONE]" for the OpenAI-compatible wire form) and assembles the
// assistant's text, preferring incremental deltas and falling back to the
// first complete message if no deltas were observed.
func (c *httpLLMClient) accumulate(resp *http.Response) (string, error) {
	var deltas strings.Builder
	var fallback string

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			data, ok = strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		if c.provider == "gemini" {
			delta, done := parseGeminiChunk(data)
			deltas.WriteString(delta)
			if fallback == "" {
				fallback = done
			}
			continue
		}
		delta, done := parseOpenAIChunk(data)
		deltas.WriteString(delta)
		if fallback == "" {
			fallback = done
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if deltas.Len() > 0 {
		return deltas.String(), nil
	}
	return fallback, nil
}

func parseOpenAIChunk(data string) (delta, fallback string) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", ""
	}
	for _, ch := range chunk.Choices {
		if ch.Delta.Content != "" {
			delta += ch.Delta.Content
		}
		if ch.Message.Content != "" && fallback == "" {
			fallback = ch.Message.Content
		}
	}
	return delta, fallback
}

func parseGeminiChunk(data string) (delta, fallback string) {
	var chunk struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", ""
	}
	for _, cand := range chunk.Candidates {
		for _, p := range cand.Content.Parts {
			delta += p.Text
		}
	}
	return delta, delta
}
