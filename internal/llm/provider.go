// Package llm abstracts text generation behind a single Provider so
// the responder never knows which model vendor is wired in.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrContentBlocked means the model refused the request on safety
	// grounds rather than failing.
	ErrContentBlocked = errors.New("generation blocked by content policy")

	// ErrGenerationFailed wraps vendor errors from a generation call.
	ErrGenerationFailed = errors.New("text generation failed")
)

// Options carry the per-call knobs. Zero values fall back to the
// provider's configured defaults.
type Options struct {
	SystemInstruction string
	MaxTokens         int
	Temperature       float32
}

type Provider interface {
	// Generate produces a completion for prompt. An empty completion
	// without an error is possible and the caller decides how to
	// present it.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)

	// Model names the underlying model for logging and conversation
	// records.
	Model() string
}
