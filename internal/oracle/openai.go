package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPersona = "You are a precise assistant for electrical cable design review. Reply with JSON only."

// OpenAI talks to the chat completions API, either OpenAI proper, a
// compatible base URL, or an Azure deployment.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	log         *zap.Logger
}

type OpenAIOptions struct {
	APIKey          string
	Model           string
	Temperature     float32
	BaseURL         string
	AzureEndpoint   string
	AzureAPIVersion string
	Logger          *zap.Logger
}

func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	var cfg openai.ClientConfig
	if opts.AzureEndpoint != "" {
		cfg = openai.DefaultAzureConfig(opts.APIKey, opts.AzureEndpoint)
		if opts.AzureAPIVersion != "" {
			cfg.APIVersion = opts.AzureAPIVersion
		}
		if opts.Model != "" {
			deployment := opts.Model
			cfg.AzureModelMapperFunc = func(string) string { return deployment }
		}
	} else {
		cfg = openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			cfg.BaseURL = opts.BaseURL
		}
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: opts.Temperature,
		log:         log,
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPersona},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.temperature,
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.log.Warn("openai completion failed", zap.String("model", o.model), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrUnavailable)
	}
	o.log.Debug("openai completion", zap.String("model", o.model), zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}
