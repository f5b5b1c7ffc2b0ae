// Package prompts loads the built-in prompt and message templates and
// renders chat-level overrides.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// ResponsesPlaceholder must appear in every scoring template; it is
// substituted with the flattened Q/A transcript.
const ResponsesPlaceholder = "${responses}"

type scoringTemplate struct {
	BasePrompt string `yaml:"base_prompt"`
}

// Manager serves the default scoring prompt and the outbound message
// templates.
type Manager struct {
	scoring  string
	messages map[string]string
}

// NewManager loads the embedded templates.
func NewManager() (*Manager, error) {
	m := &Manager{messages: make(map[string]string)}

	raw, err := templateFS.ReadFile("templates/scoring.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring template: %w", err)
	}
	var st scoringTemplate
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to parse scoring template: %w", err)
	}
	if err := ValidateScoringTemplate(st.BasePrompt); err != nil {
		return nil, err
	}
	m.scoring = st.BasePrompt

	raw, err = templateFS.ReadFile("templates/messages.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load message templates: %w", err)
	}
	if err := yaml.Unmarshal(raw, &m.messages); err != nil {
		return nil, fmt.Errorf("failed to parse message templates: %w", err)
	}
	return m, nil
}

// ScoringTemplate returns the default scoring prompt.
func (m *Manager) ScoringTemplate() string { return m.scoring }

// ValidateScoringTemplate rejects override templates missing the
// responses placeholder.
func ValidateScoringTemplate(tpl string) error {
	if !strings.Contains(tpl, ResponsesPlaceholder) {
		return errors.New("scoring template must contain " + ResponsesPlaceholder)
	}
	return nil
}

// Message renders a named outbound message template with ${key}
// substitutions. Unknown names return an empty string so callers can fall
// back to their own text.
func (m *Manager) Message(name string, vars map[string]string) string {
	tpl, ok := m.messages[name]
	if !ok {
		return ""
	}
	return Render(tpl, vars)
}

// Render substitutes ${key} placeholders in a template.
func Render(tpl string, vars map[string]string) string {
	out := tpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "${"+k+"}", v)
	}
	return strings.TrimSpace(out)
}
