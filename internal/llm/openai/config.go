package openai

import (
	"errors"
	"os"
)

// Config holds the OpenAI-compatible endpoint configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewConfig() (*Config, error) {
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		return nil, errors.New("LLM_API_KEY environment variable is required")
	}

	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   model,
	}, nil
}
