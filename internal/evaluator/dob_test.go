package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveDOBNumeric(t *testing.T) {
	e := New(nil, zap.NewNop())

	out := e.ResolveDOB(context.Background(), "8/12", "Ada", false)
	require.NotNil(t, out.DOB)
	assert.Equal(t, 8, out.DOB.Day)
	assert.Equal(t, 12, out.DOB.Month)
	assert.Nil(t, out.DOB.Year)

	out = e.ResolveDOB(context.Background(), " 08-12-1995 ", "Ada", false)
	require.NotNil(t, out.DOB)
	assert.Equal(t, 8, out.DOB.Day)
	require.NotNil(t, out.DOB.Year)
	assert.Equal(t, 1995, *out.DOB.Year)

	// Two-digit years normalise to 19xx.
	out = e.ResolveDOB(context.Background(), "8.12.95", "Ada", false)
	require.NotNil(t, out.DOB)
	require.NotNil(t, out.DOB.Year)
	assert.Equal(t, 1995, *out.DOB.Year)
}

func TestResolveDOBSwappedOrder(t *testing.T) {
	e := New(nil, zap.NewNop())

	// 25 is no month; the swapped reading 25/3 still parses.
	out := e.ResolveDOB(context.Background(), "3/25", "Ada", false)
	require.NotNil(t, out.DOB)
	assert.Equal(t, 25, out.DOB.Day)
	assert.Equal(t, 3, out.DOB.Month)
}

func TestResolveDOBUnparsableWithoutLLM(t *testing.T) {
	e := New(nil, zap.NewNop())

	out := e.ResolveDOB(context.Background(), "around the rainy season", "Ada", false)
	assert.Nil(t, out.DOB)
	assert.NotEmpty(t, out.Clarification)

	// Both numbers out of range cannot be rescued by swapping.
	out = e.ResolveDOB(context.Background(), "45/33", "Ada", true)
	assert.Nil(t, out.DOB)
	assert.NotEmpty(t, out.Clarification)
}

func TestExtractDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My name is dayo and I love football", "Dayo"},
		{"name's Chidi", "Chidi"},
		{"I'm Amara, from Enugu", "Amara"},
		{"people call me nothing in particular", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractDisplayName(tt.in), "input %q", tt.in)
	}
}
