package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/preferences"
)

func TestModeFor(t *testing.T) {
	assert.Equal(t, MatchStem, ModeFor(&preferences.Preferences{}))
	assert.Equal(t, MatchExact, ModeFor(&preferences.Preferences{Exact: true}))
	assert.Equal(t, MatchCase, ModeFor(&preferences.Preferences{CaseSensitive: true}))
	assert.Equal(t, MatchExactCase, ModeFor(&preferences.Preferences{Exact: true, CaseSensitive: true}))
}

func TestSamePrefixCase(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"God", "God", true},
		{"God", "god", false},
		{"believing", "believe", true},
		{"Believing", "believe", false},
		{"Lord", "Lordship", true},
		{"", "x", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, samePrefixCase(tt.a, tt.b), "%s/%s", tt.a, tt.b)
	}
}

func TestAccepts(t *testing.T) {
	assert.True(t, MatchStem.accepts("anything", []string{"x"}))
	assert.True(t, MatchExact.accepts("GOD", []string{"word", "god"}))
	assert.False(t, MatchExact.accepts("gods", []string{"god"}))
	assert.True(t, MatchExactCase.accepts("God", []string{"God"}))
	assert.False(t, MatchExactCase.accepts("God", []string{"god"}))
}
