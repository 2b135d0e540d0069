package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PROMPT_HOME_DELAY", "")
	t.Setenv("PROMPT_COOLDOWN", "")
	Load()

	assert.Equal(t, "8080", Port)
	assert.Equal(t, 15*time.Second, PromptHomeDelay)
	assert.Equal(t, 7*24*time.Hour, PromptCooldown)
	assert.Equal(t, "http://localhost:8080/api/v1/forms", FormEndpointURL)
	assert.False(t, PromptDebugReset)
}

func TestLoadOverrides(t *testing.T) {
	t.Cleanup(Load)
	t.Setenv("PORT", "9090")
	t.Setenv("PROMPT_HOME_DELAY", "5s")
	t.Setenv("PROMPT_SCROLL_THRESHOLD", "75")
	t.Setenv("PROMPT_DEBUG_RESET", "true")
	t.Setenv("PROMPT_PAGE_VISIT_THRESHOLD", "not-a-number")
	Load()

	assert.Equal(t, "9090", Port)
	assert.Equal(t, 5*time.Second, PromptHomeDelay)
	assert.Equal(t, 75.0, PromptScrollThreshold)
	assert.True(t, PromptDebugReset)
	assert.Equal(t, 3, PromptPageVisitThreshold)
	assert.Equal(t, "http://localhost:9090/api/v1/forms", FormEndpointURL)
}
