// Package openaiembed is the alternate embedding backend, selected at
// startup when an OpenAI key is configured instead of a Gemini one.
package openaiembed

import (
	"context"
	"fmt"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/embed"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Client struct {
	api       openai.Client
	model     string
	dimension int
	logger    *logx.Logger
}

func New(apiKey string) *Client {
	return &Client{
		api:       openai.NewClient(option.WithAPIKey(apiKey)),
		model:     config.OpenAIEmbeddingModel,
		dimension: int(config.EmbeddingDimension),
		logger:    logx.New("embedding_openai"),
	}
}

func (c *Client) Dimension() int { return c.dimension }
func (c *Client) Model() string  { return c.model }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty input", embed.ErrEmbeddingFailed)
	}

	res, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: openai.Int(int64(c.dimension)),
	})
	if err != nil {
		c.logger.Error("embedding call failed", "error", err)
		return nil, fmt.Errorf("%w: %v", embed.ErrEmbeddingFailed, err)
	}
	if len(res.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			embed.ErrEmbeddingFailed, len(res.Data), len(texts))
	}

	vectors := make([][]float32, len(res.Data))
	for i, d := range res.Data {
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		vectors[i] = v
	}
	return vectors, nil
}
