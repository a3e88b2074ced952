// Package openaillm is the alternate generation backend, selected by
// configuration when an OpenAI key is provided instead of a Gemini one.
package openaillm

import (
	"context"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/llm"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Client struct {
	api    openai.Client
	model  string
	logger *logx.Logger
}

func New(apiKey string) *Client {
	return &Client{
		api:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:  config.OpenAIModelName,
		logger: logx.New("llm_openai"),
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if opts.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemInstruction))
	}
	messages = append(messages, openai.UserMessage(prompt))

	maxTokens := int64(config.MaxOutputTokens)
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}
	temperature := float64(config.ModelTemperature)
	if opts.Temperature > 0 {
		temperature = float64(opts.Temperature)
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               openai.ChatModel(c.model),
		MaxCompletionTokens: openai.Int(maxTokens),
		Temperature:         openai.Float(temperature),
	})
	if err != nil {
		c.logger.Error("generation call failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", llm.ErrContentBlocked
	}
	return choice.Message.Content, nil
}
