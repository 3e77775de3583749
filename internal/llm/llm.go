// Package llm talks to the language model that writes Hope's replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/hope-map/internal/config"
	"github.com/ashureev/hope-map/internal/domain"
)

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Generator produces the next model turn for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, messages []domain.ChatTurn) (string, error)
}

// Closer is implemented by generators holding a connection.
type Closer interface {
	Close()
}

// New returns the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (Generator, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg, logger), nil
	case "grpc":
		return NewGrpcClient(ctx, GrpcClientConfig{Address: cfg.GrpcAddr}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
