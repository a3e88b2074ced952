package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/embed"
	"github.com/docchat/docchat/pkg/logx"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Client struct {
	genAI     *genai.Client
	model     string
	dimension int32
	logger    *logx.Logger
}

// New builds the default embedding backend on the Gemini embedding API.
func New(ctx context.Context, apiKey string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini client: %v", embed.ErrEmbeddingFailed, err)
	}
	return &Client{
		genAI:     c,
		model:     config.GeminiEmbeddingModel,
		dimension: config.EmbeddingDimension,
		logger:    logx.New("embedding_gemini"),
	}, nil
}

func (c *Client) Dimension() int { return int(c.dimension) }
func (c *Client) Model() string  { return c.model }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty input", embed.ErrEmbeddingFailed)
	}

	res, err := c.doCall(ctx, texts)
	if err != nil && isRateLimited(err) {
		c.logger.Warn("rate limit hit, retrying once", "error", err)
		time.Sleep(5 * time.Second)
		res, err = c.doCall(ctx, texts)
	}
	if err != nil {
		c.logger.Error("embedding call failed", "error", err)
		return nil, fmt.Errorf("%w: %v", embed.ErrEmbeddingFailed, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			embed.ErrEmbeddingFailed, len(res.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

func (c *Client) doCall(ctx context.Context, texts []string) (*genai.EmbedContentResponse, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: t}},
		})
	}
	return c.genAI.Models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &c.dimension,
		TaskType:             "RETRIEVAL_DOCUMENT",
	})
}

func isRateLimited(err error) bool {
	if s, ok := status.FromError(err); ok {
		return s.Code() == codes.ResourceExhausted
	}
	return false
}
