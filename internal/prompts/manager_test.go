package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerLoadsTemplates(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	assert.Contains(t, m.ScoringTemplate(), ResponsesPlaceholder)

	for _, name := range []string{"welcome", "pass", "fail", "review", "reminder", "rules", "photo_reprompt", "timeout"} {
		assert.NotEmpty(t, m.Message(name, map[string]string{"name": "Ada", "link": "x"}), "template %s", name)
	}
}

func TestMessageSubstitutesVariables(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	out := m.Message("pass", map[string]string{"name": "Ada", "link": "https://chat.example/join"})
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "https://chat.example/join")
	assert.NotContains(t, out, "${name}")
	assert.NotContains(t, out, "${link}")
}

func TestMessageUnknownNameIsEmpty(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	assert.Empty(t, m.Message("no_such_template", nil))
}

func TestValidateScoringTemplate(t *testing.T) {
	assert.NoError(t, ValidateScoringTemplate("Rate these.\n${responses}"))
	assert.Error(t, ValidateScoringTemplate("Rate these."))
}

func TestRender(t *testing.T) {
	out := Render("Hello ${name}, welcome to ${place}", map[string]string{"name": "Ada", "place": "the group"})
	assert.Equal(t, "Hello Ada, welcome to the group", out)
}
