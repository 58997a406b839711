// Package reasoner implements the reasoning service behind the Reason stage.
package reasoner

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"threatlens/internal/ports"
)

const DefaultModel = "gpt-4o-mini"

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAI asks a chat completion model for a JSON assessment.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *zap.Logger
}

var _ ports.Reasoner = (*OpenAI)(nil)

func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.Named("reasoner"),
	}
}

func (o *OpenAI) Model() string { return o.cfg.Model }

func (o *OpenAI) Reason(ctx context.Context, req ports.ReasoningRequest) (string, error) {
	creq := openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(req)},
		},
		Temperature:    o.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	if o.cfg.MaxTokens > 0 {
		creq.MaxCompletionTokens = o.cfg.MaxTokens
	}

	o.logger.Debug("requesting assessment", zap.String("model", o.cfg.Model), zap.String("indicator", req.IndicatorValue))
	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai: status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	o.logger.Debug("assessment received",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}
