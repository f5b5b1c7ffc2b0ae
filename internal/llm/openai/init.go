package openai

import "gatekeeper/internal/llm"

// Register the OpenAI-compatible provider on package import.
func init() {
	llm.RegisterProvider("openai", func() (llm.Provider, error) {
		config, err := NewConfig()
		if err != nil {
			return nil, err
		}
		return NewClient(config)
	})
}
