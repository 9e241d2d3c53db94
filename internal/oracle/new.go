package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cablecheck/internal/config"
)

// New builds the backend named by cfg.Provider. A missing API key yields an
// Offline oracle so the service still answers from its rules.
func New(ctx context.Context, cfg config.OracleConfig, log *zap.Logger) (Oracle, error) {
	if log == nil {
		log = zap.NewNop()
	}
	key := cfg.APIKey()
	var (
		o   Oracle
		err error
	)
	switch cfg.Provider {
	case "offline":
		return Offline{Reason: "provider is offline"}, nil
	case "gemini", "openai", "azure":
		if key == "" {
			log.Warn("oracle api key not set, running offline",
				zap.String("provider", cfg.Provider), zap.String("env", cfg.APIKeyEnv))
			return Offline{Reason: cfg.APIKeyEnv + " not set"}, nil
		}
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case "gemini":
		o, err = NewGemini(ctx, key, cfg.Model, cfg.Temperature, log)
	case "openai":
		o, err = NewOpenAI(OpenAIOptions{APIKey: key, Model: cfg.Model, Temperature: cfg.Temperature, BaseURL: cfg.BaseURL, Logger: log})
	case "azure":
		o, err = NewOpenAI(OpenAIOptions{APIKey: key, Model: cfg.Model, Temperature: cfg.Temperature,
			AzureEndpoint: cfg.AzureEndpoint, AzureAPIVersion: cfg.AzureAPIVersion, Logger: log})
	}
	if err != nil {
		return nil, err
	}
	if cfg.TimeoutSeconds > 0 {
		o = WithTimeout(o, time.Duration(cfg.TimeoutSeconds)*time.Second)
	}
	log.Info("oracle ready", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
	return o, nil
}

// WithTimeout bounds every call to o.
func WithTimeout(o Oracle, d time.Duration) Oracle {
	return Func(func(ctx context.Context, prompt string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return o.Complete(ctx, prompt)
	})
}
