package geminillm

import (
	"context"
	"fmt"
	"time"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/llm"
	"github.com/docchat/docchat/pkg/logx"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Client struct {
	genAI  *genai.Client
	model  string
	logger *logx.Logger
}

// New builds the default generation backend on the Gemini API.
func New(ctx context.Context, apiKey string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini client: %v", llm.ErrGenerationFailed, err)
	}
	return &Client{
		genAI:  c,
		model:  config.GeminiModelName,
		logger: logx.New("llm_gemini"),
	}, nil
}

func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if opts.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.SystemInstruction}},
		}
	}
	maxTokens := int32(config.MaxOutputTokens)
	if opts.MaxTokens > 0 {
		maxTokens = int32(opts.MaxTokens)
	}
	cfg.MaxOutputTokens = maxTokens

	temperature := float32(config.ModelTemperature)
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	cfg.Temperature = &temperature

	result, err := c.genAI.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil && isRateLimited(err) {
		c.logger.Warn("rate limit hit, retrying once", "error", err)
		time.Sleep(5 * time.Second)
		result, err = c.genAI.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	}
	if err != nil {
		c.logger.Error("generation call failed", "error", err)
		return "", err
	}

	if blocked(result) {
		return "", llm.ErrContentBlocked
	}
	return result.Text(), nil
}

// blocked reports whether the response was withheld on safety grounds,
// either at the prompt or at the candidate level.
func blocked(result *genai.GenerateContentResponse) bool {
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return true
	}
	for _, cand := range result.Candidates {
		if cand.FinishReason == genai.FinishReasonSafety {
			return true
		}
	}
	return false
}

func isRateLimited(err error) bool {
	if s, ok := status.FromError(err); ok {
		return s.Code() == codes.ResourceExhausted
	}
	return false
}
