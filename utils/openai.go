package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"go.uber.org/zap"
)

const (
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultEmbeddingModel = "text-embedding-ada-002"

	signingSystemPrompt = `You are a friendly assistant talking with a deaf or hard-of-hearing user through a signing avatar.
Reply in one or two short, plain sentences using simple everyday words. Avoid lists, markdown and emoji.`
)

var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

type OpenAIClient struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	BaseURL        string
	Client         *http.Client
}

type GPTMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GPTResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if apiKey == "" {
		zap.L().Warn("OPENAI_API_KEY not set, bot replies will use the fallback message")
	}
	return &OpenAIClient{
		APIKey:         apiKey,
		Model:          model,
		EmbeddingModel: defaultEmbeddingModel,
		BaseURL:        defaultOpenAIBaseURL,
		Client:         &http.Client{Timeout: 30 * time.Second},
	}
}

// GetResponseText asks the chat model for a reply to userInput, given the
// recent chat history and any recalled past inputs.
func (c *OpenAIClient) GetResponseText(ctx context.Context, userInput string, history []models.ChatMessage, memories []string) (string, error) {
	if c.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	system := signingSystemPrompt
	if len(memories) > 0 {
		system += "\n\nThings the user said earlier:\n- " + strings.Join(memories, "\n- ")
	}

	messages := []GPTMessage{{Role: "system", Content: system}}
	for _, msg := range history {
		messages = append(messages, GPTMessage{Role: msg.Role, Content: msg.Text})
	}
	messages = append(messages, GPTMessage{Role: "user", Content: userInput})

	requestBody := map[string]interface{}{
		"model":      c.Model,
		"messages":   messages,
		"max_tokens": 150,
	}

	bodyBytes, err := c.post(ctx, "/chat/completions", requestBody)
	if err != nil {
		return "", err
	}

	var response GPTResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response JSON: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI API response")
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty reply in OpenAI API response")
	}
	zap.L().Debug("OpenAI response content", zap.String("content", content))
	return content, nil
}

// Embed returns the embedding vector for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	requestBody := map[string]interface{}{
		"input": text,
		"model": c.EmbeddingModel,
	}
	bodyBytes, err := c.post(ctx, "/embeddings", requestBody)
	if err != nil {
		return nil, err
	}

	var responseData struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(bodyBytes, &responseData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response JSON: %w", err)
	}
	if len(responseData.Data) == 0 {
		return nil, fmt.Errorf("no data in OpenAI API response")
	}
	return responseData.Data[0].Embedding, nil
}

func (c *OpenAIClient) post(ctx context.Context, path string, requestBody map[string]interface{}) ([]byte, error) {
	requestBodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAI API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return bodyBytes, nil
}
