package llmservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"study-buddy-rag/internal/models"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// statusError is a non-2xx answer from a custom endpoint.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request failed: %d, %s", e.code, e.body)
}

// customProvider talks to a self-hosted OpenAI-compatible endpoint. The API
// key is optional.
type customProvider struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func (p *customProvider) Name() models.Provider { return models.ProviderCustom }

func (p *customProvider) Generate(ctx context.Context, prompt string) (string, error) {
	payload := chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: p.temperature,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(p.endpoint, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{code: resp.StatusCode, body: string(body)}
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("malformed response: %v", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	return response.Choices[0].Message.Content, nil
}
