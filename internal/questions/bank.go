// Package questions ships the built-in question bank used by chats that
// have not configured their own.
package questions

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"gatekeeper/internal/models"
)

//go:embed templates/default_bank.yaml
var bankFS embed.FS

type bankFile struct {
	Questions []models.Question `yaml:"questions"`
}

// DefaultBank returns a fresh copy of the embedded question list.
func DefaultBank() ([]models.Question, error) {
	raw, err := bankFS.ReadFile("templates/default_bank.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load default bank: %w", err)
	}
	var f bankFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse default bank: %w", err)
	}
	if len(f.Questions) == 0 {
		return nil, fmt.Errorf("default bank is empty")
	}
	for i, q := range f.Questions {
		if q.ID == "" || q.Text == "" {
			return nil, fmt.Errorf("default bank question %d missing id or text", i)
		}
	}
	return f.Questions, nil
}
