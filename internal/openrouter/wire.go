package openrouter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/promptum/promptum/internal/provider"
)

const maxResponseBytes = 10 << 20

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usageBlock `json:"usage"`
}

type usageBlock struct {
	PromptTokens     *int     `json:"prompt_tokens"`
	CompletionTokens *int     `json:"completion_tokens"`
	TotalTokens      *int     `json:"total_tokens"`
	TotalCost        *float64 `json:"total_cost"`
}

// buildPayload assembles the request body. Extra parameters stack on top of
// the named fields but may never shadow model or messages.
func buildPayload(req provider.Request) ([]byte, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("model is required")
	}
	for key := range req.Extra {
		if key == "model" || key == "messages" {
			return nil, fmt.Errorf("extra parameter %q conflicts with a reserved field", key)
		}
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := map[string]any{
		"model":    req.Model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	for key, value := range req.Extra {
		payload[key] = value
	}

	return json.Marshal(payload)
}

// parseCompletion decodes a 2xx body. Any shape that does not carry the
// completion text is an InvalidResponseError.
func parseCompletion(data []byte) (*completionResponse, error) {
	var parsed completionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &provider.InvalidResponseError{Reason: "malformed JSON body"}
	}
	if len(parsed.Choices) == 0 {
		return nil, &provider.InvalidResponseError{Reason: "no choices in response"}
	}
	if parsed.Choices[0].Message.Content == nil {
		return nil, &provider.InvalidResponseError{Reason: "choice missing message content"}
	}
	return &parsed, nil
}
