package provider

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/logging"
)

// Anthropic implements Provider with Claude as the judge backend. The
// Anthropic API exposes no embeddings endpoint, so embedding calls are
// delegated to a configured embedder (typically Local or another provider).
type Anthropic struct {
	client   *anthropic.Client
	embedder Provider
}

// NewAnthropic creates an Anthropic-backed provider. The API key falls back
// to ANTHROPIC_API_KEY when empty.
func NewAnthropic(apiKey string, embedder Provider) (*Anthropic, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "API key is required")
	}
	if embedder == nil {
		return nil, errors.New(errors.InvalidInput, "embedder is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &Anthropic{
		client:   &client,
		embedder: embedder,
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Embed(ctx context.Context, text string, model string) ([]float64, error) {
	return a.embedder.Embed(ctx, text, model)
}

func (a *Anthropic) EmbedBatch(ctx context.Context, texts []string, model string) ([][]float64, error) {
	return a.embedder.EmbedBatch(ctx, texts, model)
}

// Judge sends the prompt to Claude and returns the first text block of the
// response.
func (a *Anthropic) Judge(ctx context.Context, prompt string, model string, temperature float64) (string, error) {
	logger := logging.GetLogger()
	ctx = logging.WithModelID(ctx, logging.ModelID(model))

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: anthropic.Model(model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens:   1024,
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return "", errors.WithFields(
			errors.Wrap(err, errors.JudgeFailed, "judge call failed"),
			errors.Fields{"model": model},
		)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			logger.Debug(ctx, "judge responded with %d tokens", message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", errors.WithFields(
		errors.New(errors.JudgeFailed, "judge returned no text content"),
		errors.Fields{"model": model},
	)
}
