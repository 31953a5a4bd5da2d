// Package llm talks to an OpenAI-compatible chat completions API to generate
// questions and answers from a run summary.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Config holds LLM client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is an OpenAI-compatible chat completions client
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     ectologger.Logger
}

// NewClient creates a new LLM client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

const questionSystemPrompt = "You are an expert at creating test questions for educational assessments."

const answerSystemPrompt = "You are an expert educator providing clear, accurate answers based on given material."

// GenerateQuestions asks the model for count test questions about the summary
func (c *Client) GenerateQuestions(ctx context.Context, summary string, count int) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "llm.Client.GenerateQuestions")
	defer span.End()

	prompt := fmt.Sprintf(`Based on the following summary, generate %d well-structured test questions.

Summary:
%s

Generate questions that:
1. Are clear and specific
2. Test understanding of the key concepts
3. Are appropriate for assessment purposes
4. Cover different aspects of the topic

Return each question on a separate line, numbered from 1 to %d.
Only return the questions, no additional text or explanations.`, count, summary, count)

	content, err := c.chat(ctx, questionSystemPrompt, prompt)
	if err != nil {
		return nil, &GenerationError{Op: "generate questions", Err: err}
	}

	questions := ParseNumberedList(content)
	if len(questions) > count {
		questions = questions[:count]
	}
	if len(questions) == 0 {
		return nil, &GenerationError{Op: "generate questions", Err: fmt.Errorf("model returned no questions")}
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{"requested": count, "returned": len(questions)}).Info("Generated questions")
	return questions, nil
}

// GenerateAnswer asks the model to answer the question using the summary
func (c *Client) GenerateAnswer(ctx context.Context, summary string, question string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "llm.Client.GenerateAnswer")
	defer span.End()

	prompt := fmt.Sprintf(`Based on the following summary, provide a clear and comprehensive answer to the question.

Summary:
%s

Question:
%s

Provide a well-structured answer that:
1. Directly addresses the question
2. Is based on the information in the summary
3. Is clear and comprehensive
4. Is appropriate for an educational context`, summary, question)

	content, err := c.chat(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return "", &GenerationError{Op: "generate answer", Err: err}
	}

	answer := strings.TrimSpace(content)
	if answer == "" {
		return "", &GenerationError{Op: "generate answer", Err: fmt.Errorf("model returned an empty answer")}
	}
	return answer, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) chat(ctx context.Context, system string, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unexpected response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("provider error (status %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("provider error (status %d)", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
